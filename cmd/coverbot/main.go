package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"coverbot/internal/channel"
	"coverbot/internal/config"
	"coverbot/internal/coverletter"
	"coverbot/internal/metrics"
	"coverbot/internal/provider"
	"coverbot/internal/relay"
	"coverbot/internal/resume"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	// A missing .env is normal in production.
	_ = godotenv.Load()

	logger = newLogger("info")

	root := &cobra.Command{
		Use:   "coverbot",
		Short: "Coverbot: turns Slack project proposals into cover letters",
		Long: `Coverbot watches a Slack channel for project proposals, asks a language model
for a cover letter, and posts the result into a second channel.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json or config.yaml (default: ~/.coverbot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(wizardCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(listenCmd())
	root.AddCommand(generateCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(configCmd())
	root.AddCommand(daemonCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig reads the config file (defaults when absent), overlays the
// environment and rebuilds the logger at the configured level.
func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	logger = newLogger(cfg.General.LogLevel)
	return cfg, nil
}

func warnMissing(cfg *config.Config, mode config.Mode) {
	for _, w := range config.Warnings(cfg, mode) {
		logger.Warn(w)
	}
}

func buildGenerator(cfg *config.Config) (*coverletter.Generator, error) {
	prov, err := provider.NewFactory(logger).Build(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("completion provider: %w", err)
	}
	return coverletter.New(coverletter.Config{
		Provider:            prov,
		Model:               cfg.Provider.Model,
		MaxTokens:           cfg.Provider.MaxTokens,
		MaxTokensWithResume: cfg.Provider.MaxTokensWithResume,
		Logger:              logger,
	}), nil
}

func newSlackClient(cfg *config.Config) *channel.SlackClient {
	return channel.NewSlackClient(channel.SlackClientConfig{
		BotToken: cfg.Slack.BotToken,
		AppToken: cfg.Slack.AppToken,
		APIURL:   cfg.Slack.APIURL,
		Debug:    cfg.Slack.Debug,
		Logger:   logger,
	})
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Slack Events API webhook receiver",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	warnMissing(cfg, config.ModeServe)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen, err := buildGenerator(cfg)
	if err != nil {
		return err
	}
	store := resume.Load(cfg.Resume.Path, logger)
	if cfg.Resume.Watch {
		if err := store.Watch(ctx, cfg.Resume.Path, logger); err != nil {
			logger.Warn("resume watch disabled", "path", cfg.Resume.Path, "err", err)
		}
	}
	slackClient := newSlackClient(cfg)

	r := relay.New(relay.Config{
		Generator:     gen,
		Resume:        store,
		Publisher:     relay.NewPublisher(slackClient, logger),
		SourceChannel: cfg.Slack.SourceChannel,
		ResultChannel: cfg.Slack.ResultChannel,
		Logger:        logger,
	})

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
		if err := metrics.Serve(ctx, cfg.Metrics.Listen, cfg.Metrics.Path, logger); err != nil {
			return err
		}
	}

	webhook := channel.NewWebhook(channel.WebhookConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Events:         r,
		Resume:         store,
		SigningSecret:  cfg.Slack.SigningSecret,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MetricsPath:    metricsPath,
		Logger:         logger,
	})

	logger.Info("coverbot serving",
		"version", version,
		"source_channel", cfg.Slack.SourceChannel,
		"result_channel", cfg.Slack.ResultChannel,
		"provider", cfg.Provider.Name,
	)
	return webhook.Start(ctx)
}

func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Run the Socket Mode listener that echoes channel messages",
		RunE:  runListen,
	}
}

func runListen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	warnMissing(cfg, config.ModeListen)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		if err := metrics.Serve(ctx, cfg.Metrics.Listen, cfg.Metrics.Path, logger); err != nil {
			return err
		}
	}

	listener := channel.NewSocketListener(channel.SocketListenerConfig{
		Client: newSlackClient(cfg),
		Debug:  cfg.Slack.Debug,
		Logger: logger,
	})

	if err := listener.Start(ctx); err != nil {
		// No reconnect: stay up, non-functional, until told to stop.
		logger.Error("error connecting to slack", "err", err)
		channel.WaitForShutdown(ctx, logger, 10*time.Minute)
	}
	logger.Info("shutdown complete")
	return nil
}

func generateCmd() *cobra.Command {
	var resumePath string
	var noResume bool

	cmd := &cobra.Command{
		Use:   "generate [proposal...]",
		Short: "Generate one cover letter and print it (reads stdin when no args)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			warnMissing(cfg, config.ModeServe)

			proposal := strings.Join(args, " ")
			if proposal == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read proposal: %w", err)
				}
				proposal = strings.TrimSpace(string(data))
			}
			if proposal == "" {
				return fmt.Errorf("no proposal text given")
			}

			gen, err := buildGenerator(cfg)
			if err != nil {
				return err
			}

			resumeText := ""
			if !noResume {
				if resumePath == "" {
					resumePath = cfg.Resume.Path
				}
				if text, ok := resume.Load(resumePath, logger).Resume(); ok {
					resumeText = text
				}
			}

			c := gen.Generate(cmd.Context(), proposal, resumeText)
			fmt.Fprintln(cmd.OutOrStdout(), c.Text)
			if c.IsFallback() {
				return fmt.Errorf("generation fell back: %s", c.Fallback)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&resumePath, "resume", "", "resume file (default: resume.path from config)")
	cmd.Flags().BoolVar(&noResume, "no-resume", false, "do not include a resume in the prompt")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
		Long:  "Show the configuration after file loading and environment overrides. Secrets are masked.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. slack.sourceChannel)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every config path with its value",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			paths := config.ListPaths(config.Sanitize(cfg))
			keys := make([]string, 0, len(paths))
			for k := range paths {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", k, paths[k])
			}
			return nil
		},
	})

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "coverbot %s\n", version)
		},
	}
}
