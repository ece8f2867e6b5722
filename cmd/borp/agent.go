package main

import (
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-borp/internal/config"
	"github.com/teslashibe/go-borp/internal/log"
	"github.com/teslashibe/go-borp/pkg/agent"
)

var agentID string

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the agent scheduler",
	Long: `Run the agent: every tick the scheduler picks one idle task among
readChatAndReply, generateFreshThought and generatePeriodicAnimation.
A streaming-status heartbeat is sent at startup and on scheduler.heartbeat.
Persona edits in the config file are picked up without a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if agentID != "" {
			cfg.Agent.ID = agentID
		}
		logger := log.Component("agent")

		app, err := agent.New(cfg, agent.WithLogger(logger))
		if err != nil {
			return err
		}
		if err := app.Init(); err != nil {
			return err
		}
		defer app.Shutdown()

		if loader.ConfigFile() != "" {
			loader.Watch(func(c *config.Config) { app.ApplyConfig(c) }, func(err error) {
				logger.Warn().Err(err).Msg("ignoring invalid config reload")
			})
		}
		return app.Run(cmd.Context())
	},
}

func init() {
	agentCmd.Flags().StringVar(&agentID, "id", "", "agent id (overrides agent.id)")
}
