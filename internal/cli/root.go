// Package cli wires Cobra subcommands to the bridge; it is a thin controller
// with no protocol logic of its own.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/wagiedev/unity-bridge-go/internal/bridge"
	"github.com/wagiedev/unity-bridge-go/internal/config"
)

// app holds what the persistent flags and config file resolve to.
type app struct {
	configPath string
	verbose    bool
	enginePath string
	wsURL      string

	file *config.File
	log  *slog.Logger

	// transport, when set, replaces the configured transport. Tests use it.
	transport config.Transport
}

// NewRootCmd creates the root command and registers all subcommands.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "bridgectl",
		Short: "Talk to an embedded engine over the message bridge",
		// main renders the error.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.ErrOrStderr())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ./"+config.DefaultFileName+" when present)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&a.enginePath, "engine", "", "path to the engine binary")
	flags.StringVar(&a.wsURL, "ws", "", "connect to the engine over a websocket at this URL")

	root.AddCommand(
		newSendCmd(a),
		newRequestCmd(a),
		newListenCmd(a),
		newEchoCmd(a),
		newMCPCmd(a),
		newSelftestCmd(a),
	)

	return root
}

// load reads the config file and builds the logger.
func (a *app) load(stderr io.Writer) error {
	file, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	level, err := parseLevel(file.Log.Level)
	if err != nil {
		return err
	}

	if a.verbose {
		level = slog.LevelDebug
	}

	a.file = file
	a.log = slog.New(tint.NewHandler(stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))

	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log.level %q: %w", s, err)
	}

	return level, nil
}

// options merges flags over the config file.
func (a *app) options() *config.Options {
	o := &config.Options{
		Logger:       a.log,
		EnginePath:   a.enginePath,
		WebSocketURL: a.wsURL,
		Transport:    a.transport,
	}

	a.file.Apply(o)

	return o
}

// connect starts a bridge. setup runs before Start so subscriptions see the
// engine's first messages.
func (a *app) connect(ctx context.Context, setup func(*bridge.Bridge)) (*bridge.Bridge, error) {
	b := bridge.New(a.options())

	if setup != nil {
		setup(b)
	}

	if err := b.Start(ctx); err != nil {
		_ = b.Close()

		return nil, fmt.Errorf("connect to engine: %w", err)
	}

	return b, nil
}

// closeBridge closes b, logging rather than returning the error.
func (a *app) closeBridge(b *bridge.Bridge) {
	if err := b.Close(); err != nil {
		a.log.Warn("Failed to close bridge", "error", err)
	}
}
