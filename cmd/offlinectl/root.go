package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/vytor/hanziflash/internal/app"
	"github.com/vytor/hanziflash/internal/config"
	"github.com/vytor/hanziflash/internal/logger"
)

type cli struct {
	configFile string
	dbPath     string
	logLevel   string

	app *app.App
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "offlinectl",
		Short:         "Inspect and maintain the offline card cache",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.open(cmd)
		},
	}

	root.PersistentFlags().StringVar(&c.configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	root.PersistentFlags().StringVar(&c.dbPath, "db", "", "offline database path (overrides OFFLINE_DB_PATH)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "WARN", "log level: DEBUG, INFO, WARN, ERROR")

	root.AddCommand(
		c.statusCmd(),
		c.listCmd(),
		c.showCmd(),
		c.evictCmd(),
		c.clearCmd(),
		c.cacheCmd(),
	)
	return root
}

func (c *cli) open(cmd *cobra.Command) error {
	if c.configFile != "" {
		if err := os.Setenv("CONFIG_FILE", c.configFile); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("db") {
		cfg.OfflineDBPath = c.dbPath
	}
	cfg.LogLevel = c.logLevel
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.New(
		logger.WithOutput(cmd.ErrOrStderr()),
		logger.WithLevel(logger.ParseLevel(cfg.LogLevel)),
	)
	logger.SetDefault(log)
	ctx := logger.NewContext(cmd.Context(), log)
	cmd.SetContext(ctx)

	c.app, err = app.New(ctx, cfg)
	if err != nil {
		return err
	}
	c.app.Start(ctx)
	return nil
}

// run adapts fn to a cobra RunE and closes the app once fn returns.
func (c *cli) run(fn func(ctx context.Context, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			if cerr := c.app.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		return fn(cmd.Context(), cmd, args)
	}
}
