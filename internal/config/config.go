// Package config loads basalt's configuration: compiled defaults, then the
// yaml config file, then BASALT_* environment variables, then command-line
// flags, each layer overriding the last. The loaded value is passed
// explicitly into constructors; nothing reads configuration from globals.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config is the full process configuration.
type Config struct {
	DataDir         string            `koanf:"data_dir" json:"data_dir"`
	SocketPath      string            `koanf:"socket_path" json:"socket_path"`
	AuthKey         string            `koanf:"auth_key" json:"auth_key"`
	Provider        string            `koanf:"provider" json:"provider"`
	Model           string            `koanf:"model" json:"model"`
	APIKey          string            `koanf:"api_key" json:"api_key"`
	CustomPrompt    string            `koanf:"custom_prompt" json:"custom_prompt"`
	CustomCommands  map[string]string `koanf:"custom_commands" json:"custom_commands"`
	Workers         int               `koanf:"workers" json:"workers"`
	RequestTimeout  time.Duration     `koanf:"request_timeout" json:"request_timeout"`
	DrainOnShutdown bool              `koanf:"drain_on_shutdown" json:"drain_on_shutdown"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		DataDir:      filepath.Join(userDir(os.UserConfigDir), "data"),
		SocketPath:   filepath.Join(userDir(os.UserCacheDir), "daemon.sock"),
		AuthKey:      "basalt",
		CustomPrompt: "Focus on the important ideas that will help me learn as much as possible.",
		CustomCommands: map[string]string{
			"n": "Please generate {} flashcards.",
			"c": "Include detailed explanations.",
		},
		Workers:         10,
		RequestTimeout:  30 * time.Second,
		DrainOnShutdown: true,
	}
}

func userDir(base func() (string, error)) string {
	dir, err := base()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "basalt")
}

// DefaultPath is where Load looks for the config file unless told otherwise.
func DefaultPath() string {
	return filepath.Join(userDir(os.UserConfigDir), "config.yaml")
}

// Load layers the config file (if present), environment, and flags over the
// defaults. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider("BASALT_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "BASALT_"))
	}), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment config: %w", err)
	}

	if flags != nil {
		provider := posflag.ProviderWithValue(flags, ".", k, func(key, value string) (string, any) {
			return strings.ReplaceAll(key, "-", "_"), value
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, fmt.Errorf("failed to load flag config: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// DBPath is the sqlite file inside the data directory.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "flashcards.db")
}

// Snapshot is the capture-relevant subset of the config that travels inside
// a job payload, so a worker runs with the submitting client's view of the
// world rather than the daemon's.
type Snapshot struct {
	DataDir        string            `json:"data_dir"`
	Provider       string            `json:"provider"`
	Model          string            `json:"model"`
	APIKey         string            `json:"api_key"`
	CustomPrompt   string            `json:"custom_prompt"`
	CustomCommands map[string]string `json:"custom_commands"`
}

// Snapshot extracts the job-payload subset.
func (c Config) Snapshot() Snapshot {
	return Snapshot{
		DataDir:        c.DataDir,
		Provider:       c.Provider,
		Model:          c.Model,
		APIKey:         c.APIKey,
		CustomPrompt:   c.CustomPrompt,
		CustomCommands: c.CustomCommands,
	}
}
