// Command recall serves and inspects the shared memory store used by
// language-model tool calls.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeanpaul/recall/internal/config"
	"github.com/jeanpaul/recall/internal/logging"
	"github.com/jeanpaul/recall/internal/tui"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

// skipConfig marks commands that run without loading configuration.
const skipConfig = "skip-config"

type cli struct {
	cfgFile  string
	dataDir  string
	verbose  bool
	testMode bool

	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, tui.ErrorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "recall",
		Short: "Shared memory store for language-model tool calls",
		Long: `recall keeps per-user notes and travel preferences in one JSON document
that several processes can share safely, and exposes them as a fixed set of
tools over MCP (stdio or HTTP) and a JSON gateway.

Every tool call is logged to an append-only analytics file; "recall stats"
summarizes it.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfig] == "true" {
				return nil
			}
			return c.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default: ./config.yaml or "+config.Dir()+"/config.yaml)")
	flags.StringVar(&c.dataDir, "data-dir", "", "directory holding memories.json and tool_calls.jsonl")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")
	flags.BoolVar(&c.testMode, "test-mode", false, "refuse to touch the production document")

	root.AddCommand(
		newServeCmd(c),
		newCallCmd(c),
		newToolsCmd(c),
		newStatsCmd(c),
		newUsersCmd(c),
		newDoctorCmd(c),
		newConfigCmd(c),
	)
	return root
}

func (c *cli) init() error {
	if c.dataDir != "" {
		os.Setenv(config.EnvPrefix+"_DATA_DIR", c.dataDir)
	}
	if c.testMode {
		os.Setenv(config.EnvPrefix+"_TEST_MODE", "true")
	}
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return err
	}
	level := cfg.Logging.Level
	if c.verbose {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.Logging.JSON)
	if err != nil {
		return err
	}
	c.cfg, c.logger = cfg, logger
	return nil
}
