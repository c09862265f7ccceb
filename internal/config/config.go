// Package config loads runtime configuration for the work order
// service from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/agentworkd/orchestrator/internal/staterepo"
	"github.com/agentworkd/orchestrator/internal/wolog"
)

// Config holds all configuration options for the work order service.
type Config struct {
	CLICommand ClientConfig  `mapstructure:"cli"`
	State      StateConfig   `mapstructure:"state"`
	Paths      PathsConfig   `mapstructure:"paths"`
	Logging    LoggingConfig `mapstructure:"logging"`
	GitHub     GitHubConfig  `mapstructure:"github"`
}

// ClientConfig holds settings for invoking the CLI agent.
type ClientConfig struct {
	Path            string `mapstructure:"path"`
	Model           string `mapstructure:"model"`
	Verbose         bool   `mapstructure:"verbose"`
	MaxTurns        int    `mapstructure:"max_turns"`
	SkipPermissions bool   `mapstructure:"skip_permissions"`
	// TimeoutSeconds is read as whole seconds, matching
	// AGENT_WORK_ORDER_TIMEOUT's documented format.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// Timeout returns the configured CLI execution timeout as a Duration.
func (c ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StateConfig selects the state repository backend and its settings.
type StateConfig struct {
	Backend   staterepo.BackendKind `mapstructure:"backend"`
	Dir       string                `mapstructure:"dir"`
	SqliteDSN string                `mapstructure:"sqlite_dsn"`
}

// PathsConfig names directories the service reads from or writes to.
type PathsConfig struct {
	CommandsDir  string `mapstructure:"commands_dir"`
	TempDir      string `mapstructure:"temp_dir"`
	ArtifactsDir string `mapstructure:"artifacts_dir"`
}

// LoggingConfig controls the structured logger's level. The prompt and
// artifact toggles are loaded from the environment, but nothing else in
// the service reads them: they do not turn prompt logging or artifact
// capture on or off.
type LoggingConfig struct {
	Level                 string `mapstructure:"level"`
	EnablePromptLogging   bool   `mapstructure:"enable_prompt_logging"`
	EnableOutputArtifacts bool   `mapstructure:"enable_output_artifacts"`
}

// GitHubConfig holds settings for the gh CLI wrapper.
type GitHubConfig struct {
	CLIPath string `mapstructure:"cli_path"`
}

// Level parses Logging.Level via wolog.ParseLevel.
func (c Config) Level() wolog.Level {
	return wolog.ParseLevel(c.Logging.Level)
}

// StateRepoConfig adapts Config into the shape staterepo.New expects.
func (c Config) StateRepoConfig() staterepo.Config {
	return staterepo.Config{
		Kind:      c.State.Backend,
		FileDir:   c.State.Dir,
		SqliteDSN: c.State.SqliteDSN,
	}
}

// Defaults returns a Config with sensible default values, matching the
// zero-config behavior described for each environment variable.
func Defaults() Config {
	return Config{
		CLICommand: ClientConfig{
			Path:           "claude",
			Model:          "sonnet",
			TimeoutSeconds: 3600,
		},
		State: StateConfig{
			Backend: staterepo.BackendMemory,
		},
		Paths: PathsConfig{
			CommandsDir:  ".claude/commands",
			TempDir:      "/tmp/agent-work-orders",
			ArtifactsDir: "/tmp/agent-work-orders/artifacts",
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
		GitHub: GitHubConfig{
			CLIPath: "gh",
		},
	}
}

// v is a custom viper instance bound once via BindEnv calls, following
// the same pattern as a CLI flag-backed instance but with every key
// sourced from the environment instead of a file.
var v = viper.NewWithOptions(viper.KeyDelimiter("::"))

func init() {
	v.SetEnvKeyReplacer(strings.NewReplacer("::", "_"))
	v.AutomaticEnv()

	bindings := map[string]string{
		"cli::path":                        "CLAUDE_CLI_PATH",
		"cli::model":                       "CLAUDE_CLI_MODEL",
		"cli::verbose":                     "CLAUDE_CLI_VERBOSE",
		"cli::max_turns":                   "CLAUDE_CLI_MAX_TURNS",
		"cli::skip_permissions":            "CLAUDE_CLI_SKIP_PERMISSIONS",
		"cli::timeout_seconds":             "AGENT_WORK_ORDER_TIMEOUT",
		"state::backend":                   "STATE_BACKEND",
		"state::dir":                       "STATE_DIR",
		"state::sqlite_dsn":                "STATE_SQLITE_DSN",
		"paths::commands_dir":              "AGENT_WORK_ORDER_COMMANDS_DIR",
		"paths::temp_dir":                  "AGENT_WORK_ORDER_TEMP_DIR",
		"paths::artifacts_dir":             "AGENT_WORK_ORDER_ARTIFACTS_DIR",
		"logging::level":                   "LOG_LEVEL",
		"logging::enable_prompt_logging":   "ENABLE_PROMPT_LOGGING",
		"logging::enable_output_artifacts": "ENABLE_OUTPUT_ARTIFACTS",
		"github::cli_path":                 "GH_CLI_PATH",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}
}

// applyDefaults sets each viper default from d, so that an unset
// environment variable falls back to d's value rather than viper's
// zero value.
func applyDefaults(d Config) {
	v.SetDefault("cli::path", d.CLICommand.Path)
	v.SetDefault("cli::model", d.CLICommand.Model)
	v.SetDefault("cli::verbose", d.CLICommand.Verbose)
	v.SetDefault("cli::max_turns", d.CLICommand.MaxTurns)
	v.SetDefault("cli::skip_permissions", d.CLICommand.SkipPermissions)
	v.SetDefault("cli::timeout_seconds", d.CLICommand.TimeoutSeconds)
	v.SetDefault("state::backend", string(d.State.Backend))
	v.SetDefault("state::dir", d.State.Dir)
	v.SetDefault("state::sqlite_dsn", d.State.SqliteDSN)
	v.SetDefault("paths::commands_dir", d.Paths.CommandsDir)
	v.SetDefault("paths::temp_dir", d.Paths.TempDir)
	v.SetDefault("paths::artifacts_dir", d.Paths.ArtifactsDir)
	v.SetDefault("logging::level", d.Logging.Level)
	v.SetDefault("logging::enable_prompt_logging", d.Logging.EnablePromptLogging)
	v.SetDefault("logging::enable_output_artifacts", d.Logging.EnableOutputArtifacts)
	v.SetDefault("github::cli_path", d.GitHub.CLIPath)
}

// Load reads configuration from the environment, falling back to
// Defaults() for anything unset, and validates the result.
func Load() (Config, error) {
	applyDefaults(Defaults())

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling environment configuration: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks for combinations that Load cannot repair with a
// default, such as a backend missing its required setting.
func Validate(cfg Config) error {
	switch cfg.State.Backend {
	case staterepo.BackendFile:
		if cfg.State.Dir == "" {
			return fmt.Errorf("state backend %q requires STATE_DIR", cfg.State.Backend)
		}
	case staterepo.BackendRelation:
		if cfg.State.SqliteDSN == "" {
			return fmt.Errorf("state backend %q requires STATE_SQLITE_DSN", cfg.State.Backend)
		}
	case staterepo.BackendMemory, "":
		// No extra setting required.
	default:
		return fmt.Errorf("unknown state backend %q", cfg.State.Backend)
	}

	if cfg.CLICommand.TimeoutSeconds <= 0 {
		return fmt.Errorf("cli.timeout_seconds must be positive, got %d", cfg.CLICommand.TimeoutSeconds)
	}
	return nil
}
