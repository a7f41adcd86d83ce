package main

import (
	"fmt"

	"coverbot/internal/wizard"

	"github.com/spf13/cobra"
)

func wizardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wizard",
		Short: "Interactive setup: provider, Slack channels and server, then save config",
		Long:  "Prompts for the completion provider, Slack tokens and channel IDs, webhook port and resume file, and writes the config to the path given by --config or the default.",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := wizard.Run(cmd.Context(), resolveConfigPath(), nil)
			if err != nil {
				return err
			}
			fmt.Printf("Config saved to %s\n", path)
			fmt.Println("Run `coverbot doctor` to check it, then `coverbot serve`.")
			return nil
		},
	}
}
