package main

import (
	"bufio"
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-borp/internal/config"
	"github.com/teslashibe/go-borp/internal/log"
	"github.com/teslashibe/go-borp/pkg/animation"
	"github.com/teslashibe/go-borp/pkg/playback"
	"github.com/teslashibe/go-borp/pkg/viewer"
)

var viewerAgents []string

var viewerCmd = &cobra.Command{
	Use:   "viewer",
	Short: "Run a headless viewer",
	Long: `Connect to the collaborator server and present responses for the given
agents one at a time: audio is decoded with ffmpeg and drives lip-sync,
text-only responses stay up for a length-based timeout.

Stdin controls:
  <enter>                  user gesture (retries audio blocked by autoplay)
  switch <scene> <a1,a2>   switch scene and watched agents`,
	RunE: func(cmd *cobra.Command, args []string) error {
		v := cfg.Viewer
		if len(viewerAgents) > 0 {
			v.AgentIDs = viewerAgents
		}
		if len(v.AgentIDs) == 0 {
			return errors.New("no agents to watch: set viewer.agent_ids or --agents")
		}
		return runViewer(cmd.Context(), v)
	},
}

func init() {
	viewerCmd.Flags().StringSliceVar(&viewerAgents, "agents", nil, "agent ids to watch (overrides viewer.agent_ids)")
}

func runViewer(ctx context.Context, v config.ViewerConfig) error {
	logger := log.Component("viewer")

	anims := animation.NewManager(animation.Default(),
		animation.AnimatorFunc(func(key animation.Key, from, to string, fade time.Duration) {
			logger.Info().Str("avatar", key.AvatarID).Str("from", from).Str("to", to).Dur("fade", fade).Msg("crossfade")
		}),
		animation.WithCrossfade(v.Crossfade),
		animation.WithRevertAfter(v.RevertAfter),
		animation.WithIdleClip(v.IdleClip),
		animation.WithLogger(logger),
	)
	defer anims.Close()

	elemOpts := []playback.ElementOption{
		playback.WithDecoder(&playback.FFmpegDecoder{Path: v.DecoderPath, SampleRate: v.SampleRate}),
		playback.WithFrameRate(v.FrameRate),
		playback.WithElementLogger(logger),
	}
	if fields := strings.Fields(v.SinkCommand); len(fields) > 0 {
		elemOpts = append(elemOpts, playback.WithSinkCommand(fields[0], fields[1:]...))
	}
	mouth := playback.ExpressionSinkFunc(func(name string, weight float64) {
		logger.Trace().Str("expression", name).Float64("weight", weight).Send()
	})
	presenter := playback.New(playback.NewAudioElement(elemOpts...), mouth,
		playback.WithTimeouts(playback.Timeouts{Short: v.ShortTimeout, Medium: v.MediumTimeout, Long: v.LongTimeout}),
		playback.WithSmoothing(v.Smoothing),
		playback.WithLogger(logger),
	)

	conn := viewer.NewConn(v.ServerURL,
		viewer.WithBackoff(v.ReconnectMin, v.ReconnectMax),
		viewer.WithConnLogger(logger),
	)
	scene, err := viewer.NewScene(conn, presenter, anims,
		viewer.WithDedupeWindow(v.DedupeWindow),
		viewer.WithSceneLogger(logger),
		viewer.WithOnPresent(func(p viewer.Presentation) {
			r := p.Response
			ev := logger.Info().Str("agent_id", r.AgentID).Str("text", r.Text)
			if rt := r.ReplyTo(); rt != nil {
				ev = ev.Str("reply_to", rt.User)
			}
			ev.Bool("thought", r.Thought).Bool("audio", r.HasAudio()).Msg("on screen")
		}),
	)
	if err != nil {
		return err
	}
	scene.Attach(conn)
	scene.Switch(v.Scene, v.AgentIDs...)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scene.Run(ctx) })
	g.Go(func() error { return conn.Run(ctx) })
	go readControls(scene)

	return g.Wait()
}

// readControls turns stdin lines into gestures and scene switches.
func readControls(scene *viewer.Scene) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		switch {
		case len(fields) == 0:
			scene.Gesture()
		case fields[0] == "switch" && len(fields) == 3:
			scene.Switch(fields[1], strings.Split(fields[2], ",")...)
		default:
			log.Warn().Str("input", sc.Text()).Msg("unknown control")
		}
	}
}
