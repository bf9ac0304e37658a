package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/altafino/inbox-verifier/internal/app"
	"github.com/altafino/inbox-verifier/internal/config"
	"github.com/altafino/inbox-verifier/internal/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgDir    string
	configID  string
	logLevel  string
	logFormat string
	logger    *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "inbox-verifier",
	Short: "Mailbox deliverability verification engine",
	Long: `Locates marked test emails across Gmail, Outlook, Yahoo and generic IMAP
accounts, classifies their placement (inbox, spam, categorized tabs) and
identifies the anti-spam system that processed them.`,
}

func init() {
	// Default logger until a configuration is loaded.
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgDir, "config-dir", "", "config directory (default is ./config)")
	rootCmd.PersistentFlags().StringVar(&configID, "config-id", "", "specific config ID to use")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override logging format (text, json, dev)")

	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(runCmd, verifyCmd, checkCmd, sampleCmd)
}

func configDir() string {
	if cfgDir != "" {
		return cfgDir
	}
	return "./config"
}

func initConfig() {
	config.InitLogger(logger)

	if err := config.LoadConfigs(configDir()); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configs: %v\n", err)
		os.Exit(1)
	}

	configs := config.ListConfigs()
	if len(configs) == 0 {
		fmt.Fprintf(os.Stderr, "No configurations found in %s\n", configDir())
		os.Exit(1)
	}

	logger.Info("loaded configurations",
		"count", len(configs),
		"enabled", len(config.GetEnabledConfigs()),
	)
}

// selectConfig resolves the configuration a one-shot command operates on.
func selectConfig() (*types.Config, error) {
	var cfg *types.Config
	if configID != "" {
		c, err := config.GetConfig(configID)
		if err != nil {
			return nil, err
		}
		cfg = c
	} else {
		enabled := config.GetEnabledConfigs()
		if len(enabled) == 0 {
			return nil, fmt.Errorf("no enabled configurations")
		}
		if len(enabled) > 1 {
			return nil, fmt.Errorf("multiple enabled configurations, pass --config-id")
		}
		cfg = enabled[0]
	}

	if v := viper.GetString("logging.level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := viper.GetString("logging.format"); v != "" {
		cfg.Logging.Format = v
	}
	return cfg, nil
}

func loadRuntime() (*app.Runtime, error) {
	cfg, err := selectConfig()
	if err != nil {
		return nil, err
	}
	return app.BuildRuntime(cfg)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon with the connection re-check scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.New(logger, configDir(), configID)
		if err != nil {
			return fmt.Errorf("failed to create application: %w", err)
		}
		defer application.Stop()

		if err := application.Start(); err != nil {
			return fmt.Errorf("failed to start application: %w", err)
		}

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop

		logger.Info("shutting down")
		return nil
	},
}
