package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Install or remove coverbot as a user service (launchd/systemd)",
	}
	cmd.AddCommand(installDaemonCmd(), uninstallDaemonCmd())
	return cmd
}

func installDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "install [serve|listen]",
		Short:     "Write a service file that runs coverbot at login",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"serve", "listen"},
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := "serve"
			if len(args) == 1 {
				mode = args[0]
			}
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			svc := serviceSpec{Exec: execPath, Config: resolveConfigPath(), Mode: mode}

			switch runtime.GOOS {
			case "darwin":
				return installLaunchd(svc)
			case "linux":
				return installSystemd(svc)
			default:
				return fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", runtime.GOOS)
			}
		},
	}
}

func uninstallDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "uninstall [serve|listen]",
		Short:     "Remove the coverbot service file",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"serve", "listen"},
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := "serve"
			if len(args) == 1 {
				mode = args[0]
			}
			switch runtime.GOOS {
			case "darwin":
				return removeServiceFile(launchdPath(mode))
			case "linux":
				return removeServiceFile(systemdPath(mode))
			default:
				return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
			}
		},
	}
}

// serviceSpec describes one coverbot process to supervise.
type serviceSpec struct {
	Exec   string
	Config string
	Mode   string // "serve" or "listen"
}

func (s serviceSpec) render(tmpl string) string {
	logDir := filepath.Join(homeDir(), ".coverbot", "logs")
	r := strings.NewReplacer(
		"{{LABEL}}", launchdLabel(s.Mode),
		"{{EXEC}}", s.Exec,
		"{{MODE}}", s.Mode,
		"{{CONFIG}}", s.Config,
		"{{LOG}}", filepath.Join(logDir, "coverbot-"+s.Mode+".log"),
		"{{ERR_LOG}}", filepath.Join(logDir, "coverbot-"+s.Mode+"-error.log"),
	)
	return r.Replace(tmpl)
}

func homeDir() string {
	home, _ := os.UserHomeDir()
	return home
}

func launchdLabel(mode string) string { return "com.coverbot." + mode }

func launchdPath(mode string) string {
	return filepath.Join(homeDir(), "Library", "LaunchAgents", launchdLabel(mode)+".plist")
}

func systemdPath(mode string) string {
	return filepath.Join(homeDir(), ".config", "systemd", "user", "coverbot-"+mode+".service")
}

func installLaunchd(svc serviceSpec) error {
	plistPath := launchdPath(svc.Mode)
	// launchd does not create log directories.
	if err := os.MkdirAll(filepath.Join(homeDir(), ".coverbot", "logs"), 0o755); err != nil {
		return err
	}
	if err := writeServiceFile(plistPath, svc.render(launchdTemplate)); err != nil {
		return err
	}
	fmt.Printf("Daemon installed: %s\n", plistPath)
	fmt.Printf("To start: launchctl load %s\n", plistPath)
	fmt.Printf("To stop:  launchctl unload %s\n", plistPath)
	return nil
}

func installSystemd(svc serviceSpec) error {
	unitPath := systemdPath(svc.Mode)
	if err := writeServiceFile(unitPath, svc.render(systemdTemplate)); err != nil {
		return err
	}
	unit := filepath.Base(unitPath)
	fmt.Printf("Daemon installed: %s\n", unitPath)
	fmt.Printf("To start:  systemctl --user start %s\n", unit)
	fmt.Printf("To enable: systemctl --user enable %s\n", unit)
	fmt.Printf("To stop:   systemctl --user stop %s\n", unit)
	return nil
}

func writeServiceFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func removeServiceFile(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove service file: %w", err)
	}
	fmt.Printf("Daemon uninstalled: %s\n", path)
	return nil
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{LABEL}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{EXEC}}</string>
        <string>{{MODE}}</string>
        <string>--config</string>
        <string>{{CONFIG}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{LOG}}</string>
    <key>StandardErrorPath</key>
    <string>{{ERR_LOG}}</string>
</dict>
</plist>`

const systemdTemplate = `[Unit]
Description=Coverbot Slack cover letter relay ({{MODE}})
After=network-online.target

[Service]
Type=simple
ExecStart={{EXEC}} {{MODE}} --config {{CONFIG}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target`
