package main

import (
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-borp/internal/config"
	"github.com/teslashibe/go-borp/internal/log"
)

var (
	configPath string
	logLevel   string

	loader *config.Loader
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "borp",
	Short: "Agent response orchestration for live streams",
	Long: `borp drives a virtual streamer: the agent answers chat, thinks out loud
and animates; the server fans its reactions out to viewers; the viewer
presents them one at a time in sync with audio.

Configuration is read from borp.yaml (./ or ~/.borp/) and BORP_* variables,
e.g. BORP_AGENT_ID or BORP_LLM_API_KEY.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loader = config.NewLoader(configPath)
		var err error
		if cfg, err = loader.Load(); err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}
		log.Init(cfg.Log.Level)
		if f := loader.ConfigFile(); f != "" {
			log.Info().Str("file", f).Msg("loaded config")
		}
		return cfg.Validate()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./borp.yaml or ~/.borp/borp.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "trace, debug, info, warn or error")

	rootCmd.AddCommand(agentCmd, serverCmd, viewerCmd)
}
