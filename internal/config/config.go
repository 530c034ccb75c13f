// Package config handles configuration management using Viper.
//
// The portal reads a single INI file, the way xdg-desktop-portal-wlr's
// original C implementation does: the first existing of
// $XDG_CONFIG_HOME/xdg-desktop-portal-wlr/<desktop>,
// $XDG_CONFIG_HOME/xdg-desktop-portal-wlr/config, then
// $SYSCONFDIR/xdg/xdg-desktop-portal-wlr/config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ChooserType selects how the screencast target picker operates (spec §6).
type ChooserType string

const (
	ChooserDefault ChooserType = "default"
	ChooserNone    ChooserType = "none"
	ChooserSimple  ChooserType = "simple"
	ChooserDmenu   ChooserType = "dmenu"
)

// CropMode controls how capture region cropping is negotiated.
type CropMode string

const (
	CropNone     CropMode = "none"
	CropWlroots  CropMode = "wlroots"
	CropPipewire CropMode = "pipewire"
)

// ScreencastConfig is the [screencast] section of the config file.
type ScreencastConfig struct {
	OutputName     string      `mapstructure:"output_name"`
	MaxFPS         float64     `mapstructure:"max_fps"`
	ExecBefore     string      `mapstructure:"exec_before"`
	ExecAfter      string      `mapstructure:"exec_after"`
	ChooserCmd     string      `mapstructure:"chooser_cmd"`
	ChooserType    ChooserType `mapstructure:"chooser_type"`
	ForceModLinear bool        `mapstructure:"force_mod_linear"`
	CropMode       CropMode    `mapstructure:"cropmode"`
	Region         string      `mapstructure:"region"`

	// ForcedFormat is the DRM fourcc set by -p/--pixelformat (spec §6
	// "forces the advertised media format, no conversion is performed").
	// nil means negotiate the format from the compositor as usual; this
	// is CLI-only and never read from the INI file.
	ForcedFormat *uint32 `mapstructure:"-"`
}

// SetForcedFormat applies the -p/--pixelformat override, if any.
func (c *Config) SetForcedFormat(fourcc uint32) {
	c.Screencast.ForcedFormat = &fourcc
}

// Config represents the full application configuration.
type Config struct {
	Screencast ScreencastConfig `mapstructure:"screencast"`
}

// DefaultConfig provides sensible defaults, mirroring the original
// implementation's built-in fallbacks.
var DefaultConfig = Config{
	Screencast: ScreencastConfig{
		OutputName:     "",
		MaxFPS:         30,
		ExecBefore:     "",
		ExecAfter:      "",
		ChooserCmd:     "",
		ChooserType:    ChooserDefault,
		ForceModLinear: false,
		CropMode:       CropNone,
		Region:         "",
	},
}

var cfg *Config

// SearchPaths returns the ordered list of config file candidates per
// spec §6, honoring $XDG_CONFIG_HOME with a fallback to $HOME/.config
// (spec §8 boundary case).
func SearchPaths(desktop string) []string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home := os.Getenv("HOME")
		if home == "" {
			home = "."
		}
		configHome = filepath.Join(home, ".config")
	}

	sysConfDir := os.Getenv("SYSCONFDIR")
	if sysConfDir == "" {
		sysConfDir = "/etc"
	}

	var paths []string
	if desktop != "" {
		paths = append(paths, filepath.Join(configHome, "xdg-desktop-portal-wlr", desktop))
	}
	paths = append(paths,
		filepath.Join(configHome, "xdg-desktop-portal-wlr", "config"),
		filepath.Join(sysConfDir, "xdg", "xdg-desktop-portal-wlr", "config"),
	)
	return paths
}

// Init loads the first existing config file from SearchPaths, falling
// back to DefaultConfig when none exist.
func Init(desktop string) error {
	viper.SetConfigType("ini")

	viper.SetDefault("screencast", map[string]interface{}{
		"output_name":      DefaultConfig.Screencast.OutputName,
		"max_fps":          DefaultConfig.Screencast.MaxFPS,
		"exec_before":      DefaultConfig.Screencast.ExecBefore,
		"exec_after":       DefaultConfig.Screencast.ExecAfter,
		"chooser_cmd":      DefaultConfig.Screencast.ChooserCmd,
		"chooser_type":     string(DefaultConfig.Screencast.ChooserType),
		"force_mod_linear": DefaultConfig.Screencast.ForceModLinear,
		"cropmode":         string(DefaultConfig.Screencast.CropMode),
		"region":           DefaultConfig.Screencast.Region,
	})

	var foundPath string
	for _, p := range SearchPaths(desktop) {
		if _, err := os.Stat(p); err == nil {
			foundPath = p
			break
		}
	}

	if foundPath != "" {
		viper.SetConfigFile(foundPath)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", foundPath, err)
		}
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}

	// max_fps <= 0 disables the FPS limiter (spec §8 boundary case);
	// canonicalize chooser_type/cropmode to their recognized values.
	cfg.Screencast.ChooserType = ChooserType(strings.ToLower(string(cfg.Screencast.ChooserType)))
	cfg.Screencast.CropMode = CropMode(strings.ToLower(string(cfg.Screencast.CropMode)))

	return nil
}

// Get returns the current configuration, or DefaultConfig if Init was
// never called.
func Get() *Config {
	if cfg == nil {
		d := DefaultConfig
		return &d
	}
	return cfg
}
