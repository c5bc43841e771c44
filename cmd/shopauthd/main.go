// Command shopauthd serves the back-office auth API and carries the
// operational subcommands around it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth/internal/config"
	"github.com/MrEthical07/shopauth/internal/logger"
)

var version = "dev"

type app struct {
	configPath string
	envFile    string
	cfg        *config.Config
	log        *zap.Logger
}

func main() {
	a := &app{}

	root := &cobra.Command{
		Use:           "shopauthd",
		Short:         "Back-office session authentication service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", envOr("SHOPAUTH_CONFIG", ""), "YAML config file (env SHOPAUTH_CONFIG)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the config")

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newHashPasswordCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print the build version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(version)
			},
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "shopauthd:", err)
		os.Exit(1)
	}
}

func (a *app) load() error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	a.cfg = cfg
	a.log = logger.New(logger.Config{
		Env:     cfg.App.Env,
		Level:   cfg.App.LogLevel,
		Service: "shopauthd",
		Version: version,
	})
	zap.ReplaceGlobals(a.log)
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
