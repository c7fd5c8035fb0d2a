package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	Server   struct {
		BaseURL     string `json:"base_url"`
		Token       string `json:"token"`
		MaxAttempts int    `json:"max_attempts"`
	} `json:"server"`
	Agent struct {
		ID      string `json:"id"`
		ModelID string `json:"model_id"`
		UserID  string `json:"user_id"`
	} `json:"agent"`
	Stream struct {
		ReadBuffer   int  `json:"read_buffer"`
		EOFAsFailure bool `json:"eof_as_failure"`
		Trace        bool `json:"trace"`
	} `json:"stream"`
	History struct {
		MaxTokens int    `json:"max_tokens"`
		Model     string `json:"model"`
	} `json:"history"`
	HTTP struct {
		Listen        string `json:"listen"`
		MaxConcurrent int    `json:"max_concurrent"`
	} `json:"http"`
	LLM struct {
		BaseURL      string  `json:"base_url"`
		APIKey       string  `json:"api_key"`
		Model        string  `json:"model"`
		MaxTokens    int     `json:"max_tokens"`
		Temperature  float32 `json:"temperature"`
		SystemPrompt string  `json:"system_prompt"`
	} `json:"llm"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".chatbridge"),
		LogLevel: "info",
	}
	cfg.Server.BaseURL = "http://127.0.0.1:8000"
	cfg.Server.MaxAttempts = 1
	cfg.Agent.ID = "echo"
	cfg.Stream.ReadBuffer = 4096
	cfg.History.Model = "gpt-4o"
	cfg.HTTP.Listen = "127.0.0.1:8000"
	cfg.HTTP.MaxConcurrent = 4
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.MaxTokens = 1024
	cfg.LLM.Temperature = 0.7
	cfg.LLM.SystemPrompt = "You are a helpful assistant."
	return cfg
}

// DiagnosticsDir is where traced diagnostics are recorded.
func (c *Config) DiagnosticsDir() string {
	return filepath.Join(c.DataDir, "diagnostics")
}

// Load reads the config at path, writing the defaults there first if the
// file does not exist. Variables from a .env file in the working directory
// are loaded without overriding the real environment; the environment then
// takes precedence over the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	// Override from env (highest precedence)
	if v := os.Getenv("CHATBRIDGE_BASE_URL"); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := os.Getenv("CHATBRIDGE_TOKEN"); v != "" {
		cfg.Server.Token = v
	}
	if v := os.Getenv("CHATBRIDGE_AGENT"); v != "" {
		cfg.Agent.ID = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}

	return cfg, nil
}

// Save writes cfg to path atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg to a nested map with JSON field names. Numbers are
// float64 as after a JSON round trip.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns cfg as a flat map of dotted keys, with secrets masked
// when mask is true.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// Keys returns every known dotted key in sorted order.
func Keys() []string {
	flat, _ := ListValues(Default(), false)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isKnownKey(key string) bool {
	for _, k := range Keys() {
		if k == key {
			return true
		}
	}
	return false
}

// GetValue returns the effective value of a dotted key, loading (and if
// necessary creating) the config at path.
func GetValue(path, key string) (any, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	flat, err := ListValues(cfg, false)
	if err != nil {
		return nil, err
	}
	v, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue stores raw under a dotted key in the existing config file at
// path. raw is stored as JSON when it parses as JSON (numbers, booleans)
// and as a plain string otherwise.
func SetValue(path, key, raw string) error {
	if !isKnownKey(key) {
		return fmt.Errorf("unknown config key: %s", key)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	var value any = raw
	var parsed any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); err == nil {
		if _, isString := parsed.(string); !isString {
			value = parsed
		}
	}

	flat := Flatten(m)
	flat[key] = value

	// Round-trip through Config so type mismatches are rejected.
	out, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := json.Unmarshal(out, Default()); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return writeFile(path, append(out, '\n'))
}
