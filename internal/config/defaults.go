package config

const (
	DefaultSourceChannel = "C082W4UDLJJ"
	DefaultResultChannel = "C08383AU6HZ"
)

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Slack: SlackConfig{
			SourceChannel: DefaultSourceChannel,
			ResultChannel: DefaultResultChannel,
		},
		Provider: ProviderConfig{
			Name:                "openai",
			MaxTokens:           250,
			MaxTokensWithResume: 500,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 5000,
		},
		Resume: ResumeConfig{
			Path: "resume.txt",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
