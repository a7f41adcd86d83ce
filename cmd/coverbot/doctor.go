package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"coverbot/internal/config"
	"coverbot/internal/provider"
	"coverbot/internal/resume"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your coverbot setup",
		Long: `Verifies that coverbot's configuration, resume file, Slack credentials and
completion provider are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("Coverbot Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file
			if _, err := os.Stat(cfgPath); err != nil {
				printWarn("Config file", fmt.Sprintf("not found at %s, using defaults and environment", cfgPath))
				warned++
			} else {
				printPass("Config file", cfgPath)
				passed++
			}

			// 2. Config loads and validates
			cfg, err := loadConfig()
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return fmt.Errorf("config invalid")
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Resume file
			if text, ok := resume.Load(cfg.Resume.Path, logger).Resume(); ok {
				printPass("Resume", fmt.Sprintf("%s (%d chars)", cfg.Resume.Path, len(text)))
				passed++
			} else {
				printWarn("Resume", fmt.Sprintf("%s missing or empty, prompts will omit it", cfg.Resume.Path))
				warned++
			}

			// 4. Credentials
			warns := config.Warnings(cfg, config.ModeServe)
			if cfg.Slack.AppToken == "" {
				warns = append(warns, "slack.appToken is not set; the listen command cannot connect")
			}
			for _, w := range warns {
				printWarn("Credentials", w)
				warned++
			}

			// 5. Webhook port
			if err := checkPort(cfg.Server.Addr()); err != nil {
				printWarn("Webhook port", fmt.Sprintf("%s may be in use: %v", cfg.Server.Addr(), err))
				warned++
			} else {
				printPass("Webhook port", cfg.Server.Addr()+" available")
				passed++
			}

			if !offline {
				ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
				defer cancel()

				// 6. Slack auth
				if cfg.Slack.BotToken != "" {
					if id, err := newSlackClient(cfg).Identity(ctx); err != nil {
						printFail("Slack auth", err.Error())
						failed++
					} else {
						printPass("Slack auth", fmt.Sprintf("%s in %s", id.User, id.Team))
						passed++
					}
				}

				// 7. Completion provider
				prov, err := provider.NewFactory(logger).Build(cfg.Provider)
				if err != nil {
					printFail("Provider", err.Error())
					failed++
				} else if err := prov.Healthy(ctx); err != nil {
					printFail("Provider: "+prov.Name(), err.Error())
					failed++
				} else {
					printPass("Provider: "+prov.Name(), "reachable")
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running coverbot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nCoverbot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! Coverbot is ready to run.\n")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip checks that call Slack or the provider")
	return cmd
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
