package agent

import (
	"github.com/rs/zerolog"

	"github.com/teslashibe/go-borp/internal/config"
	"github.com/teslashibe/go-borp/pkg/inference"
	"github.com/teslashibe/go-borp/pkg/tts"
)

// newLLM builds the primary inference client, chained with a fallback
// endpoint when one is configured.
func newLLM(c config.LLMConfig, logger zerolog.Logger) (inference.Provider, error) {
	primary, err := inference.NewClient(
		inference.WithName("primary"),
		inference.WithBaseURL(c.BaseURL),
		inference.WithAPIKey(c.APIKey),
		inference.WithModels(c.SmallModel, c.MediumModel, c.LargeModel),
		inference.WithTemperature(c.Temperature),
		inference.WithMaxTokens(c.MaxTokens),
		inference.WithTimeout(c.Timeout),
		inference.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	if c.FallbackBaseURL == "" {
		return primary, nil
	}

	model := c.FallbackModel
	if model == "" {
		model = c.MediumModel
	}
	fallback, err := inference.NewClient(
		inference.WithName("fallback"),
		inference.WithBaseURL(c.FallbackBaseURL),
		inference.WithAPIKey(c.FallbackAPIKey),
		inference.WithModel(model),
		inference.WithTemperature(c.Temperature),
		inference.WithMaxTokens(c.MaxTokens),
		inference.WithTimeout(c.Timeout),
		inference.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	chain, err := inference.NewChainWithLogger(logger, primary, fallback)
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// newSpeech builds the configured TTS provider, chained with the fallback
// provider when set. It returns nil when speech is disabled.
func newSpeech(c config.TTSConfig, logger zerolog.Logger) (tts.Provider, error) {
	primary, err := tts.New(c.Provider, speechOptions(c, c.Provider, logger)...)
	if err != nil {
		return nil, err
	}
	if c.FallbackProvider == "" || c.FallbackProvider == c.Provider {
		return primary, nil
	}
	fallback, err := tts.New(c.FallbackProvider, speechOptions(c, c.FallbackProvider, logger)...)
	if err != nil {
		return nil, err
	}
	if primary == nil {
		return fallback, nil
	}
	if fallback == nil {
		return primary, nil
	}
	chain, err := tts.NewChainWithLogger(logger, primary, fallback)
	if err != nil {
		return nil, err
	}
	return chain, nil
}

func speechOptions(c config.TTSConfig, provider string, logger zerolog.Logger) []tts.Option {
	opts := []tts.Option{tts.WithTimeout(c.Timeout), tts.WithLogger(logger)}
	switch provider {
	case tts.NameOpenAI:
		opts = append(opts, tts.WithAPIKey(c.OpenAIKey))
		if c.OpenAIVoice != "" {
			opts = append(opts, tts.WithVoice(c.OpenAIVoice))
		}
		if c.OpenAIModel != "" {
			opts = append(opts, tts.WithModel(c.OpenAIModel))
		}
	case tts.NameElevenLabs:
		opts = append(opts, tts.WithAPIKey(c.ElevenLabsKey), tts.WithVoice(c.ElevenLabsVoice))
		if c.ElevenLabsModel != "" {
			opts = append(opts, tts.WithModel(c.ElevenLabsModel))
		}
	}
	return opts
}

type named interface{ Name() string }

func providerName(p any) string {
	if n, ok := p.(named); ok {
		return n.Name()
	}
	return "custom"
}
