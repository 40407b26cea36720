package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/xhad/glov/internal/logger"
	"github.com/xhad/glov/pkg/config"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logJSON    bool

	config *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "glov",
		Short:         "Ingest PDFs into pgvector and query them",
		Long:          "glov downloads a PDF, splits it into chunks, embeds them into PostgreSQL with pgvector and returns the chunks most similar to a query.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "Emit logs as JSON")

	root.AddCommand(
		newServeCmd(opts),
		newQueryCmd(opts),
	)
	return root
}

// load reads .env, the config file and the environment, then sets up
// logging.
func (o *rootOptions) load(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if cmd.Flags().Changed("log-json") {
		cfg.Log.JSON = o.logJSON
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = logger.ParseLevel(cfg.Log.Level)
	logCfg.JSON = cfg.Log.JSON
	logger.Init(logCfg)

	o.config = cfg
	return nil
}

// validate reports every invalid field at once.
func validate(cfg *config.Config) error {
	problems := cfg.Validate()
	if len(problems) == 0 {
		return nil
	}
	msgs := make([]string, len(problems))
	for i, p := range problems {
		msgs[i] = p.Error()
	}
	return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
}
