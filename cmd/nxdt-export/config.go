package main

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config mirrors the export command's flags; a TOML file supplies
// defaults for flags not set on the command line.
type Config struct {
	FFSPath       string   `toml:"ffs_path"`
	InterfaceName string   `toml:"interface_name"`
	BufferSize    string   `toml:"buffer_size"`
	Timeout       duration `toml:"timeout"`
	LogLevel      string   `toml:"log_level"`
	KeepGoing     bool     `toml:"keep_going"`
}

// duration makes time.Duration TOML-decodable from strings like "2s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func defaultConfig() Config {
	return Config{
		FFSPath:       "/dev/usb-ffs/nxdt",
		InterfaceName: "NXDT",
		BufferSize:    "8MiB",
		Timeout:       duration{time.Second},
		LogLevel:      "info",
	}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "load config %s", path)
	}
	return cfg, nil
}
