// ABOUTME: YAML configuration for the previewer engine and bridge
// ABOUTME: Defaults are applied before unmarshal so absent keys keep them
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config carries engine and bridge settings loaded at startup
type Config struct {
	Name             string  `yaml:"name"`
	TickHz           int     `yaml:"tickHz"`
	Port             int     `yaml:"port"`
	EnableMDNS       bool    `yaml:"mdns"`
	CanvasW          float64 `yaml:"canvasWidth"`
	CanvasH          float64 `yaml:"canvasHeight"`
	StorePath        string  `yaml:"storePath"`
	HistoryCapacity  int     `yaml:"historyCapacity"`
	SyncToleranceSec float64 `yaml:"syncToleranceSec"`
	AutosaveSec      int     `yaml:"autosaveSec"`
	AutosaveKeep     int     `yaml:"autosaveKeep"`
	Debug            bool    `yaml:"debug"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Name:             "Previz Engine",
		TickHz:           30,
		Port:             8931,
		EnableMDNS:       true,
		CanvasW:          1920,
		CanvasH:          1080,
		StorePath:        "previz.db",
		HistoryCapacity:  50,
		SyncToleranceSec: 0.3,
		AutosaveSec:      60,
		AutosaveKeep:     10,
	}
}

// Load reads a YAML config file over the defaults and validates the result
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges that would break the engine or bridge
func (c Config) Validate() error {
	if c.TickHz < 1 || c.TickHz > 240 {
		return fmt.Errorf("tickHz %d out of range 1..240", c.TickHz)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.CanvasW <= 0 || c.CanvasH <= 0 {
		return fmt.Errorf("canvas %gx%g must be positive", c.CanvasW, c.CanvasH)
	}
	if c.HistoryCapacity < 1 {
		return fmt.Errorf("historyCapacity %d must be at least 1", c.HistoryCapacity)
	}
	if c.SyncToleranceSec < 0 {
		return fmt.Errorf("syncToleranceSec %g must not be negative", c.SyncToleranceSec)
	}
	if c.AutosaveSec < 0 {
		return fmt.Errorf("autosaveSec %d must not be negative", c.AutosaveSec)
	}
	return nil
}
