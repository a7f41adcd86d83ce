package wizard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"

	"coverbot/internal/config"
)

// ErrAborted is returned when the user declines to overwrite an existing file.
var ErrAborted = errors.New("wizard aborted")

const otherProvider = "other (OpenAI-compatible)"

// Prompter abstracts survey for testability.
type Prompter interface {
	AskSelect(label string, options []string, def string) (string, error)
	AskInput(label, def string) (string, error)
	AskPassword(label string) (string, error)
	AskConfirm(label string, def bool) (bool, error)
}

// Run asks for provider, Slack and server settings and writes the config to
// path. Blank secrets are left empty so the environment supplies them at
// startup. Returns the path written.
func Run(ctx context.Context, path string, p Prompter) (string, error) {
	if p == nil {
		p = surveyPrompter{}
	}
	if path == "" {
		path = config.DefaultConfigPath()
	}
	path = config.ExpandPath(path)

	cfg := config.Defaults()
	if _, err := os.Stat(path); err == nil {
		overwrite, err := p.AskConfirm(fmt.Sprintf("%s exists. Overwrite?", path), false)
		if err != nil {
			return "", err
		}
		if !overwrite {
			return "", fmt.Errorf("%w: config exists at %s", ErrAborted, path)
		}
		if existing, err := config.Load(path); err == nil {
			cfg = existing
		}
	}

	if err := askProvider(p, cfg); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := askSlack(p, cfg); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := askServer(p, cfg); err != nil {
		return "", err
	}

	if err := config.Validate(cfg); err != nil {
		return "", err
	}
	if err := config.Save(path, cfg); err != nil {
		return "", err
	}
	return path, nil
}

func askProvider(p Prompter, cfg *config.Config) error {
	options := []string{"openai", "anthropic", otherProvider}
	def := cfg.Provider.Name
	if def != "openai" && def != "anthropic" {
		def = otherProvider
	}
	choice, err := p.AskSelect("Completion provider", options, def)
	if err != nil {
		return err
	}

	envVar := "OPENAI_API_KEY"
	switch choice {
	case "anthropic":
		envVar = "ANTHROPIC_API_KEY"
		cfg.Provider.APIBase = ""
	case otherProvider:
		name, err := p.AskInput("Provider name", strings.TrimSpace(cfg.Provider.Name))
		if err != nil {
			return err
		}
		base, err := p.AskInput("API base URL", cfg.Provider.APIBase)
		if err != nil {
			return err
		}
		choice = strings.TrimSpace(name)
		cfg.Provider.APIBase = strings.TrimSpace(base)
		if cfg.Provider.APIBase == "" {
			return errors.New("an OpenAI-compatible provider needs an API base URL")
		}
	default:
		cfg.Provider.APIBase = ""
	}
	cfg.Provider.Name = choice

	key, err := p.AskPassword(fmt.Sprintf("API key (blank reads %s)", envVar))
	if err != nil {
		return err
	}
	cfg.Provider.APIKey = strings.TrimSpace(key)

	model, err := p.AskInput("Model (blank uses the provider default)", cfg.Provider.Model)
	if err != nil {
		return err
	}
	cfg.Provider.Model = strings.TrimSpace(model)
	return nil
}

func askSlack(p Prompter, cfg *config.Config) error {
	token, err := p.AskPassword("Slack bot token (blank reads SLACK_BOT_TOKEN)")
	if err != nil {
		return err
	}
	cfg.Slack.BotToken = strings.TrimSpace(token)

	if cfg.Slack.SourceChannel, err = p.AskInput("Proposal channel ID", cfg.Slack.SourceChannel); err != nil {
		return err
	}
	if cfg.Slack.ResultChannel, err = p.AskInput("Cover letter channel ID", cfg.Slack.ResultChannel); err != nil {
		return err
	}

	listen, err := p.AskConfirm("Configure the Socket Mode echo listener?", cfg.Slack.AppToken != "")
	if err != nil {
		return err
	}
	if listen {
		appToken, err := p.AskPassword("Slack app-level token (blank reads SLACK_APP_TOKEN)")
		if err != nil {
			return err
		}
		cfg.Slack.AppToken = strings.TrimSpace(appToken)
	}
	return nil
}

func askServer(p Prompter, cfg *config.Config) error {
	port, err := p.AskInput("Webhook port", strconv.Itoa(cfg.Server.Port))
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(strings.TrimSpace(port))
	if err != nil {
		return fmt.Errorf("invalid port %q", port)
	}
	cfg.Server.Port = n

	resumePath, err := p.AskInput("Resume file", cfg.Resume.Path)
	if err != nil {
		return err
	}
	cfg.Resume.Path = strings.TrimSpace(resumePath)

	watch, err := p.AskConfirm("Reload the resume when the file changes?", cfg.Resume.Watch)
	if err != nil {
		return err
	}
	cfg.Resume.Watch = watch
	return nil
}

// surveyPrompter is the interactive terminal implementation.
type surveyPrompter struct{}

func (surveyPrompter) AskSelect(label string, options []string, def string) (string, error) {
	sel := def
	prompt := &survey.Select{Message: label, Options: options, Default: def}
	if err := survey.AskOne(prompt, &sel); err != nil {
		return "", err
	}
	return sel, nil
}

func (surveyPrompter) AskInput(label, def string) (string, error) {
	ans := def
	prompt := &survey.Input{Message: label, Default: def}
	if err := survey.AskOne(prompt, &ans); err != nil {
		return "", err
	}
	return ans, nil
}

func (surveyPrompter) AskPassword(label string) (string, error) {
	var ans string
	prompt := &survey.Password{Message: label}
	if err := survey.AskOne(prompt, &ans); err != nil {
		return "", err
	}
	return ans, nil
}

func (surveyPrompter) AskConfirm(label string, def bool) (bool, error) {
	ans := def
	prompt := &survey.Confirm{Message: label, Default: def}
	if err := survey.AskOne(prompt, &ans); err != nil {
		return false, err
	}
	return ans, nil
}
