package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

//go:embed categories.yaml
var DefaultCategoriesYAML []byte

//go:embed session_instructions.txt
var DefaultSessionInstructions []byte

//go:embed message_instructions.txt
var DefaultMessageInstructions []byte

type Config struct {
	Database     Database     `yaml:"database"`
	OpenAI       OpenAI       `yaml:"openai"`
	Instructions Instructions `yaml:"instructions"`
	Taxonomy     Taxonomy     `yaml:"taxonomy"`
	Classifier   Classifier   `yaml:"classifier"`
	Server       Server       `yaml:"server"`
	Logging      Logging      `yaml:"logging"`
}

type Database struct {
	Path string `yaml:"path"`
}

type OpenAI struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// Instructions points at the system prompt sources for the two classifiers.
// A ref is either a filesystem path or an http(s) URL.
type Instructions struct {
	Session string `yaml:"session"`
	Message string `yaml:"message"`
}

type Taxonomy struct {
	Path string `yaml:"path"`
}

type Classifier struct {
	// FirstUserSplitMarker, when set, strips embedded boilerplate from the
	// first user message: everything up to and including the marker is removed.
	FirstUserSplitMarker string `yaml:"first_user_split_marker"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for chatclass.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "chatclass")
}

// DataDir returns the XDG data directory for chatclass.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "chatclass")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/chatclass/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'chatclass init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file. A .env.local file in the working
// directory is loaded first so api_key_env lookups see it; existing
// environment variables are never overridden.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env.local")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Database: Database{
			Path: filepath.Join(DataDir(), "chatclass.db"),
		},
		OpenAI: OpenAI{
			APIKeyEnv: "OPENAI_API_KEY",
			Model:     "gpt-4o-mini",
			MaxTokens: 256,
		},
		Taxonomy: Taxonomy{Path: "categories.yaml"},
		Server:   Server{Port: 8000},
		Logging:  Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// ResolveTaxonomyPath returns the taxonomy file path, resolving relative
// paths against the directory of the config file.
func (c *Config) ResolveTaxonomyPath(configPath string) string {
	if c.Taxonomy.Path == "" || filepath.IsAbs(c.Taxonomy.Path) {
		return c.Taxonomy.Path
	}
	return filepath.Join(filepath.Dir(configPath), c.Taxonomy.Path)
}

// ResolveInstructionRef resolves a file-based instruction ref against the
// directory of the config file. http(s) URLs and absolute paths pass through.
func (c *Config) ResolveInstructionRef(configPath, ref string) string {
	if ref == "" || filepath.IsAbs(ref) ||
		strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return filepath.Join(filepath.Dir(configPath), ref)
}

// APIKey resolves the OpenAI API key from the configured environment variable.
func (c *Config) APIKey() string {
	return os.Getenv(c.OpenAI.APIKeyEnv)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
