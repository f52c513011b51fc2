package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const FileName = "trackline.yml"

type Config struct {
	Server    Server    `yaml:"server"`
	Auth      Auth      `yaml:"auth"`
	Automaton Automaton `yaml:"automaton"`
}

type Server struct {
	Addr     string `yaml:"addr"`
	BasePath string `yaml:"base_path"`
}

type Auth struct {
	JWTSecret string `yaml:"jwt_secret"`
	// AllowLegacyActorHeader accepts the X-Actor-Id header in place of
	// real credentials. Meant for local setups only.
	AllowLegacyActorHeader bool `yaml:"allow_legacy_actor_header"`
}

type Automaton struct {
	ProjectTimeoutSeconds int `yaml:"project_timeout_seconds"`
}

func Default() Config {
	return Config{
		Server: Server{
			Addr:     "127.0.0.1:8484",
			BasePath: "/api/v1",
		},
		Automaton: Automaton{
			ProjectTimeoutSeconds: 10,
		},
	}
}

// Load reads trackline.yml from the workspace, falling back to defaults
// when the file is absent.
func Load(workspace string) (Config, error) {
	path := filepath.Join(workspace, FileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, err
	}
	return FromYAML(data)
}

func FromYAML(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Automaton.ProjectTimeoutSeconds < 0 {
		return fmt.Errorf("automaton.project_timeout_seconds must not be negative")
	}
	return nil
}

// ProjectTimeout converts the configured seconds into a duration.
func (c Config) ProjectTimeout() time.Duration {
	return time.Duration(c.Automaton.ProjectTimeoutSeconds) * time.Second
}
