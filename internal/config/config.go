// Package config loads the defaults of the pdfrev command from a config
// file and PDFREV_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/tsawler/pdfrev/document"
)

const (
	// FileName is the config file name without extension; pdfrev.toml and
	// pdfrev.yaml are both found.
	FileName = "pdfrev"
	// EnvPrefix prefixes environment overrides, e.g. PDFREV_SAVE_GARBAGE.
	EnvPrefix = "PDFREV"
)

// Config keys.
const (
	KeySaveGarbage       = "save.garbage"
	KeySaveObjectStreams = "save.object_streams"
	KeySaveXRefStream    = "save.xref_stream"
	KeySaveCompress      = "save.compress"
	KeyLogLevel          = "log.level"
)

// Config holds the effective settings.
type Config struct {
	Save SaveConfig `mapstructure:"save" toml:"save"`
	Log  LogConfig  `mapstructure:"log" toml:"log"`

	// Path is the file the settings were read from, empty when none was found.
	Path string `mapstructure:"-" toml:"-"`
}

// SaveConfig holds the defaults of full saves.
type SaveConfig struct {
	Garbage       string `mapstructure:"garbage" toml:"garbage"`
	ObjectStreams bool   `mapstructure:"object_streams" toml:"object_streams"`
	XRefStream    bool   `mapstructure:"xref_stream" toml:"xref_stream"`
	Compress      bool   `mapstructure:"compress" toml:"compress"`
}

// LogConfig holds the logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" toml:"level"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Save: SaveConfig{Garbage: document.GarbageNone.String()},
		Log:  LogConfig{Level: log.WarnLevel.String()},
	}
}

// Load reads the settings. An explicit path must exist; otherwise pdfrev.*
// is looked up in the working directory and the user config directory, and
// a missing file leaves the defaults in place.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults := Default()
	v.SetDefault(KeySaveGarbage, defaults.Save.Garbage)
	v.SetDefault(KeySaveObjectStreams, defaults.Save.ObjectStreams)
	v.SetDefault(KeySaveXRefStream, defaults.Save.XRefStream)
	v.SetDefault(KeySaveCompress, defaults.Save.Compress)
	v.SetDefault(KeyLogLevel, defaults.Log.Level)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, FileName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Path = v.ConfigFileUsed()
	return cfg, nil
}

// SaveOptions returns the configured full-save options.
func (c *Config) SaveOptions() (document.SaveOptions, error) {
	garbage, err := document.ParseGarbageLevel(c.Save.Garbage)
	if err != nil {
		return document.SaveOptions{}, fmt.Errorf("%s: %w", KeySaveGarbage, err)
	}
	return document.SaveOptions{
		Garbage:         garbage,
		ObjectStreams:   c.Save.ObjectStreams,
		XRefStream:      c.Save.XRefStream,
		CompressStreams: c.Save.Compress,
	}, nil
}

// Logger returns a logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) (*log.Logger, error) {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyLogLevel, err)
	}
	return log.NewWithOptions(w, log.Options{
		Prefix: "pdfrev",
		Level:  level,
	}), nil
}

// TOML renders the settings in config file syntax.
func (c *Config) TOML() ([]byte, error) {
	return toml.Marshal(c)
}
