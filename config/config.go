// Package config loads the drive and capture geometry a read session
// runs against, from a user-editable TOML file.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

//go:embed fluxcore.toml
var defaultConfigData []byte

// Drive describes one physical drive's geometry and read retry
// policy.
type Drive struct {
	Name       string `toml:"name"`
	Cyls       int    `toml:"cyls"`
	Sides      int    `toml:"sides"`
	RPM        int    `toml:"rpm"`
	MaxRetries int    `toml:"max_retries"`
	// TickPeriodNs is the drive's nominal flux-transition clock
	// period, in nanoseconds (e.g. 2000ns for a 300RPM DD drive).
	// trackreader.Reader falls back to it only when a capture yields
	// no transitions to estimate a clock from; a real histogram
	// estimate from the capture always takes precedence.
	TickPeriodNs int `toml:"tick_period_ns"`
	// Format names the registered trackreader.FormatDecoder to use
	// ("ibm", "amiga", "brother").
	Format string `toml:"format"`
}

// File is the top-level shape of the TOML config file: a default
// drive name plus the array of configured drives.
type File struct {
	Default string  `toml:"default"`
	Drive   []Drive `toml:"drive"`
}

func configPath() (string, error) {
	var dir string
	var err error

	switch runtime.GOOS {
	case "windows":
		dir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("config: determine user config directory: %w", err)
		}
		dir = filepath.Join(dir, "fluxcore")
	default:
		dir, err = os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("config: determine user home directory: %w", err)
		}
	}

	return filepath.Join(dir, ".fluxcore.toml"), nil
}

// Load reads the drive configuration, creating the file from the
// embedded default on first run. It returns the Drive named by the
// file's `default` key.
func Load() (Drive, error) {
	path, err := configPath()
	if err != nil {
		return Drive{}, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Drive{}, fmt.Errorf("config: create config directory %s: %w", dir, err)
		}
		if err := os.WriteFile(path, defaultConfigData, 0644); err != nil {
			return Drive{}, fmt.Errorf("config: write default config to %s: %w", path, err)
		}
	}

	var file File
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return Drive{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return selectDefault(file)
}

// selectDefault finds and validates the drive named by file.Default.
// Factored out of Load so tests can exercise it against an in-memory
// File without touching the filesystem.
func selectDefault(file File) (Drive, error) {
	if file.Default == "" {
		return Drive{}, fmt.Errorf("config: `default` key is missing or empty")
	}

	var drive *Drive
	for i := range file.Drive {
		if file.Drive[i].Name == file.Default {
			drive = &file.Drive[i]
			break
		}
	}
	if drive == nil {
		return Drive{}, fmt.Errorf("config: default drive %q not found", file.Default)
	}

	if drive.Cyls <= 0 {
		return Drive{}, fmt.Errorf("config: drive %q has invalid cyls: %d", drive.Name, drive.Cyls)
	}
	if drive.Sides <= 0 {
		return Drive{}, fmt.Errorf("config: drive %q has invalid sides: %d", drive.Name, drive.Sides)
	}
	if drive.RPM <= 0 {
		return Drive{}, fmt.Errorf("config: drive %q has invalid rpm: %d", drive.Name, drive.RPM)
	}
	if drive.MaxRetries <= 0 {
		return Drive{}, fmt.Errorf("config: drive %q has invalid max_retries: %d", drive.Name, drive.MaxRetries)
	}
	if drive.TickPeriodNs <= 0 {
		return Drive{}, fmt.Errorf("config: drive %q has invalid tick_period_ns: %d", drive.Name, drive.TickPeriodNs)
	}
	if drive.Format == "" {
		return Drive{}, fmt.Errorf("config: drive %q has no format set", drive.Name)
	}

	return *drive, nil
}
