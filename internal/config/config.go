package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/0xPuncker/chronos-console/pkg/types"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig      `json:"server" yaml:"server"`
	Chronos ChronosConfig     `json:"chronos" yaml:"chronos"`
	Console ConsoleConfig     `json:"console" yaml:"console"`
	Slack   SlackConfig       `json:"slack" yaml:"slack"`
	Tasks   types.TasksConfig `json:"tasks" yaml:"tasks"`
}

type ServerConfig struct {
	Port         string `json:"port" yaml:"port"`
	ReadTimeout  string `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout string `json:"write_timeout" yaml:"write_timeout"`
}

// ChronosConfig points the console at the scheduler agent.
type ChronosConfig struct {
	URL      string `json:"url" yaml:"url"`
	Timeout  string `json:"timeout" yaml:"timeout"`
	CacheTTL string `json:"cache_ttl" yaml:"cache_ttl"`
}

type ConsoleConfig struct {
	UseLocalTime bool   `json:"use_local_time" yaml:"use_local_time"`
	LoadTimeout  string `json:"load_timeout" yaml:"load_timeout"`
	// Timezone names the zone used for local times, e.g. "Europe/Lisbon". Empty means the host zone.
	Timezone string `json:"timezone" yaml:"timezone"`
}

type SlackConfig struct {
	WebhookURL string `json:"webhook_url" yaml:"webhook_url"`
}

// Load reads the config file at configPath, as YAML when the extension is
// .yaml or .yml and as JSON otherwise. Without a readable file the config is
// built from environment variables, after loading .env or .env.local.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if err := godotenv.Load(); err != nil {
			if err := godotenv.Load(".env.local"); err != nil {
				fmt.Printf("No .env or .env.local file found. Using environment variables.\n")
			}
		}

		for _, env := range []string{
			"PORT",
			"CHRONOS_URL",
			"CONSOLE_LOAD_TIMEOUT",
		} {
			fmt.Printf("%s=%s\n", env, os.Getenv(env))
		}

		return FromEnv(), nil
	}

	var config Config
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func FromEnv() *Config {
	config := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ""),
			ReadTimeout:  getEnv("SERVER_READ_TIMEOUT", ""),
			WriteTimeout: getEnv("SERVER_WRITE_TIMEOUT", ""),
		},
		Chronos: ChronosConfig{
			URL:      getEnv("CHRONOS_URL", ""),
			Timeout:  getEnv("CHRONOS_TIMEOUT", ""),
			CacheTTL: getEnv("CHRONOS_CACHE_TTL", ""),
		},
		Console: ConsoleConfig{
			UseLocalTime: getEnvBool("CONSOLE_USE_LOCAL_TIME", false),
			LoadTimeout:  getEnv("CONSOLE_LOAD_TIMEOUT", ""),
			Timezone:     getEnv("CONSOLE_TIMEZONE", ""),
		},
		Slack: SlackConfig{
			WebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
		},
	}
	config.applyDefaults()
	return config
}

func DefaultConfig() *Config {
	config := &Config{}
	config.applyDefaults()
	return config
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "15s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "15s"
	}
	if c.Chronos.URL == "" {
		c.Chronos.URL = "http://localhost:8081"
	}
	if c.Chronos.Timeout == "" {
		c.Chronos.Timeout = "5s"
	}
	if c.Chronos.CacheTTL == "" {
		c.Chronos.CacheTTL = "30s"
	}
	if c.Console.LoadTimeout == "" {
		c.Console.LoadTimeout = "10s"
	}
	if c.Tasks.MaxConcurrent == 0 {
		c.Tasks.MaxConcurrent = 1
	}
	if c.Tasks.Predefined == nil {
		c.Tasks.Predefined = []types.TaskConfig{
			{
				Name:        "refresh-jobs",
				Schedule:    "0 * * * * *",
				TaskName:    "refresh-jobs",
				Enabled:     true,
				Description: "Re-query the agent's job list and close views of deleted jobs",
			},
		}
	}
}

// Location returns the zone the console renders local times in.
func (c ConsoleConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Duration parses value, returning fallback when it is empty or malformed.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}
