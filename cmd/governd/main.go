package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/XiaoConstantine/govern-go/pkg/config"
	"github.com/XiaoConstantine/govern-go/pkg/governance"
	"github.com/XiaoConstantine/govern-go/pkg/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "governd",
	Short: "Agent trust and proposal governance engine",
	Long: `governd hosts the governance engine that lets autonomous agents propose
changes to extraction behavior, tracks per-agent per-capability trust, gates
auto-approval, and keeps an append-only audit trail of every trust change.`,
	Version: "0.1.0",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the governance engine until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		setupLogging(cfg)

		engine, err := governance.Open(cfg)
		if err != nil {
			return err
		}
		defer engine.Close()

		ctx := context.Background()
		logger := logging.GetLogger()
		logger.Info(ctx, "governance engine ready (db=%s)", cfg.Storage.Path)

		// Log committed transitions until shutdown.
		token, events := engine.Subscribe(64)
		defer engine.Unsubscribe(token)

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

		for {
			select {
			case n, ok := <-events:
				if !ok {
					return nil
				}
				logger.InfoWith(ctx, map[string]interface{}{
					"kind":   n.Kind,
					"id":     n.ID,
					"status": n.Status,
				}, "change committed")
			case sig := <-sigs:
				logger.Info(ctx, "shutting down on %s", sig)
				return nil
			}
		}
	},
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the configuration and print the effective values",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(configPath)
}

func setupLogging(cfg *config.Config) {
	outputs := []logging.Output{
		logging.NewConsoleOutput(true, logging.WithColor(cfg.Logging.Color)),
	}
	if cfg.Logging.FilePath != "" {
		if fileOut, err := logging.NewFileOutput(cfg.Logging.FilePath); err == nil {
			outputs = append(outputs, fileOut)
		} else {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		}
	}
	logging.SetLogger(logging.NewLogger(logging.Config{
		Severity: logging.ParseSeverity(cfg.Logging.Level),
		Outputs:  outputs,
	}))
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to yaml config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkConfigCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
