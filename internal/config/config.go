package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config is the only persisted config file schema.
type Config struct {
	Addr    string  `toml:"addr"`
	LogPath string  `toml:"log_path"`
	Engine  Engine  `toml:"engine"`
	Search  Search  `toml:"search"`
	Python  Python  `toml:"python"`
	Tasks   Tasks   `toml:"tasks"`
	History History `toml:"history"`
	Source  string  `toml:"-"`
}

// Engine selects the model provider and its credentials.
type Engine struct {
	Provider string `toml:"provider"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
	Model    string `toml:"model"`
}

// Search configures the web_search tool backend.
type Search struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// Python configures the execute_python tool.
type Python struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// Tasks configures the background task loop and retention.
type Tasks struct {
	MaxIterations    int `toml:"max_iterations"`
	HeartbeatSeconds int `toml:"heartbeat_seconds"`
	RetentionMinutes int `toml:"retention_minutes"`
}

// History configures the conversation store location.
type History struct {
	Dir string `toml:"dir"`
}

func Default() Config {
	return Config{
		Addr: ":8080",
		Engine: Engine{
			Provider: "openai",
		},
		Python: Python{
			TimeoutSeconds: 120,
		},
		Tasks: Tasks{
			MaxIterations:    5,
			HeartbeatSeconds: 30,
			RetentionMinutes: 10,
		},
		History: History{
			Dir: "history",
		},
	}
}

func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".relay-chat", "config.toml")
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return cfg, errors.New("config path is empty and $HOME is not set")
	}
	cfg.Source = path

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnv(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv 环境变量优先于文件内容。
func applyEnv(cfg *Config) {
	if env := strings.TrimSpace(os.Getenv("RELAY_CHAT_ADDR")); env != "" {
		cfg.Addr = env
	}
	if env := strings.TrimSpace(os.Getenv("ENGINE_API_KEY")); env != "" {
		cfg.Engine.APIKey = env
	}
	if env := strings.TrimSpace(os.Getenv("ENGINE_BASE_URL")); env != "" {
		cfg.Engine.BaseURL = env
	}
	if env := strings.TrimSpace(os.Getenv("ENGINE_MODEL")); env != "" {
		cfg.Engine.Model = env
	}
	if env := strings.TrimSpace(os.Getenv("ENGINE_PROVIDER")); env != "" {
		cfg.Engine.Provider = env
	}
	if env := strings.TrimSpace(os.Getenv("SEARCH_API_KEY")); env != "" {
		cfg.Search.APIKey = env
	}
}
