package config

import (
	"strconv"
	"strings"
)

// ApplyKVOverrides applies free-form -c key=value overrides.
func ApplyKVOverrides(cfg Config, overrides []string) Config {
	if len(overrides) == 0 {
		return cfg
	}
	for _, raw := range overrides {
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		switch key {
		case "addr":
			cfg.Addr = val
		case "log_path":
			cfg.LogPath = val
		case "engine.provider":
			cfg.Engine.Provider = val
		case "engine.api_key":
			cfg.Engine.APIKey = val
		case "engine.base_url":
			cfg.Engine.BaseURL = val
		case "engine.model":
			cfg.Engine.Model = val
		case "search.api_key":
			cfg.Search.APIKey = val
		case "search.base_url":
			cfg.Search.BaseURL = val
		case "python.timeout_seconds":
			if n, err := strconv.Atoi(val); err == nil && n > 0 {
				cfg.Python.TimeoutSeconds = n
			}
		case "tasks.max_iterations":
			if n, err := strconv.Atoi(val); err == nil && n > 0 {
				cfg.Tasks.MaxIterations = n
			}
		case "tasks.heartbeat_seconds":
			if n, err := strconv.Atoi(val); err == nil && n > 0 {
				cfg.Tasks.HeartbeatSeconds = n
			}
		case "tasks.retention_minutes":
			if n, err := strconv.Atoi(val); err == nil && n >= 0 {
				cfg.Tasks.RetentionMinutes = n
			}
		case "history.dir":
			cfg.History.Dir = val
		}
	}
	return cfg
}
