// Package config loads the pilot configuration: defaults, then an optional
// YAML file, then SHOWDOWN_PILOT_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "SHOWDOWN_PILOT_"

// DefaultPath is used when SHOWDOWN_PILOT_CONFIG is unset.
const DefaultPath = "config/pilot.yaml"

type Config struct {
	Server    Server    `yaml:"server" envPrefix:"SERVER_"`
	Decision  Decision  `yaml:"decision" envPrefix:"DECISION_"`
	LLM       LLM       `yaml:"llm" envPrefix:"LLM_"`
	Lua       Lua       `yaml:"lua" envPrefix:"LUA_"`
	History   History   `yaml:"history" envPrefix:"HISTORY_"`
	Data      Data      `yaml:"data" envPrefix:"DATA_"`
	Audit     Audit     `yaml:"audit" envPrefix:"AUDIT_"`
	Telemetry Telemetry `yaml:"telemetry" envPrefix:"TELEMETRY_"`
	Watch     Watch     `yaml:"watch" envPrefix:"WATCH_"`

	Locale     string `yaml:"locale" env:"LOCALE"`
	LogLevel   string `yaml:"log_level" env:"LOG_LEVEL"`
	RandomSeed int64  `yaml:"random_seed" env:"RANDOM_SEED"`
}

// Server is the Showdown connection and matchmaking.
type Server struct {
	URL      string `yaml:"url" env:"URL"`
	LoginURL string `yaml:"login_url" env:"LOGIN_URL"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
	Format   string `yaml:"format" env:"BATTLE_FORMAT"`
	// Challenge names a user to challenge once logged in.
	Challenge string `yaml:"challenge" env:"CHALLENGE"`
	Accept    bool   `yaml:"accept_challenges" env:"ACCEPT_CHALLENGES"`
	Ladder    bool   `yaml:"search_ladder" env:"SEARCH_LADDER"`
}

type Decision struct {
	Provider           string        `yaml:"provider" env:"PROVIDER"`
	Timeout            time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxProviderRetries int           `yaml:"max_provider_retries" env:"MAX_PROVIDER_RETRIES"`
	MaxInvalidChoices  int           `yaml:"max_invalid_choices" env:"MAX_INVALID_CHOICES"`
	HintTimeout        time.Duration `yaml:"hint_timeout" env:"HINT_TIMEOUT"`
}

type LLM struct {
	URL         string        `yaml:"url" env:"URL"`
	APIKey      string        `yaml:"api_key" env:"API_KEY"`
	Model       string        `yaml:"model" env:"MODEL"`
	Temperature float64       `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens   int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
	Referer     string        `yaml:"referer" env:"REFERER"`
	Title       string        `yaml:"title" env:"TITLE"`
}

type Lua struct {
	Script string `yaml:"script" env:"SCRIPT"`
}

type History struct {
	Window int `yaml:"window" env:"WINDOW"`
}

type Data struct {
	Pokedex string `yaml:"pokedex" env:"POKEDEX"`
	Moves   string `yaml:"moves" env:"MOVES"`
}

// Audit is disabled when Path is empty.
type Audit struct {
	Path string `yaml:"path" env:"PATH"`
}

type Telemetry struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
}

// Watch is disabled when Addr is empty.
type Watch struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

func Default() Config {
	return Config{
		Server: Server{
			URL:      "ws://localhost:8000/showdown/websocket",
			LoginURL: "https://play.pokemonshowdown.com/action.php",
			Format:   "gen9randombattle",
		},
		Decision: Decision{
			Provider:           "smart",
			Timeout:            30 * time.Second,
			MaxProviderRetries: 2,
			MaxInvalidChoices:  3,
			HintTimeout:        2 * time.Second,
		},
		LLM: LLM{
			URL:       "https://openrouter.ai/api/v1/chat/completions",
			Model:     "anthropic/claude-3.5-sonnet",
			MaxTokens: 500,
			Timeout:   60 * time.Second,
			Title:     "showdown-pilot",
		},
		History: History{Window: 3},
		Data: Data{
			Pokedex: "data/pokedex.json",
			Moves:   "data/moves.json",
		},
		Locale:   "en-US",
		LogLevel: "info",
	}
}

// Path returns the config file location from the environment.
func Path() string {
	if p := os.Getenv(EnvPrefix + "CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Decision.Provider {
	case "smart", "random", "llm", "human", "lua":
	default:
		return fmt.Errorf("decision.provider: unknown provider %q", c.Decision.Provider)
	}
	if c.Decision.Provider == "lua" && c.Lua.Script == "" {
		return fmt.Errorf("lua.script is required for the lua provider")
	}
	if c.History.Window < 1 {
		return fmt.Errorf("history.window must be positive, got %d", c.History.Window)
	}
	if c.Decision.MaxProviderRetries < 0 || c.Decision.MaxInvalidChoices < 0 {
		return fmt.Errorf("decision retries must not be negative")
	}
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	return nil
}

func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
