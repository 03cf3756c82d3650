// Command catalogq serves the catalog query API and inspects compiled queries.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/catalogq/internal/config"
	"github.com/kailas-cloud/catalogq/internal/version"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "catalogq",
		Short: "Filtered queries over records and groups",
		Long: `catalogq answers filtered, ordered and paginated queries over records
and their groups. Queries go to an external search delegate first and fall
back to the relational backend when the delegate is unavailable.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to a YAML config file (default: config/$ENV.yaml)")

	loadConfig := func() (config.Config, string, error) {
		env := config.GetEnv()
		var (
			cfg config.Config
			err error
		)
		if configPath != "" {
			cfg, err = config.LoadFile(configPath)
		} else {
			cfg, err = config.Load(env)
		}
		if err != nil {
			return config.Config{}, "", fmt.Errorf("load config: %w", err)
		}
		return cfg, env, nil
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP query API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, env, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, env)
		},
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newExplainCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(version.String())
		},
	})

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
