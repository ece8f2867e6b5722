package tts

import (
	"fmt"
	"strings"
)

// Provider names accepted by New.
const (
	NameElevenLabs = providerElevenLabs
	NameOpenAI     = providerOpenAI
	NameNone       = "none"
)

// New builds a provider by name. "none" and the empty name yield a nil
// Provider and no error, which callers treat as speech disabled.
func New(name string, opts ...Option) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameNone:
		return nil, nil
	case NameElevenLabs:
		p, err := NewElevenLabs(opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	case NameOpenAI:
		p, err := NewOpenAI(opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}
