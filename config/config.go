package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/semihalev/zlog/v2"
)

const configver = "1.0.0"

// Config type
type Config struct {
	Version         string
	Bind            string
	TLSCertificate  string
	TLSPrivateKey   string
	LogLevel        string
	AccessList      []string
	ClientRateLimit int
	ShutdownTimeout Duration

	sVersion string
}

// ServerVersion return current server version
func (c *Config) ServerVersion() string {
	return c.sVersion
}

// Duration type
type Duration struct {
	time.Duration
}

// UnmarshalText for duration type
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText for duration type
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

var defaultConfig = `
# Config version, config and build versions can be different.
version = "%s"

# Address to bind to for the rendezvous http server
bind = ":3030"

# TLS certificate file, the server switches to https when both certificate and key are set.
# The certificate is reloaded automatically when the files change.
# tlscertificate = "server.crt"

# TLS private key file
# tlsprivatekey = "server.key"

# What kind of information should be logged, Log verbosity level [error,warn,info,debug]
loglevel = "info"

# Which clients allowed to wait for a second party
accesslist = [
"0.0.0.0/0",
"::0/0"
]

# Client ip address based ratelimit per minute, 0 for disabled
clientratelimit = 0

# How long to wait for in-flight requests while stopping. Waiting parties are released
# after at most 10 seconds, so keep this above that.
shutdowntimeout = "15s"
`

// Load loads the given config file, a default one is generated when it is missing
func Load(cfgfile, version string) (*Config, error) {
	config := new(Config)

	if _, err := os.Stat(cfgfile); os.IsNotExist(err) {
		if err := generateConfig(cfgfile); err != nil {
			return nil, err
		}
	}

	zlog.Info("Loading config file", "path", cfgfile)

	if _, err := toml.DecodeFile(cfgfile, config); err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}

	if config.Version != configver {
		zlog.Warn("Config file is out of version, you can generate new one and check the changes.")
	}

	config.sVersion = version

	if config.Bind == "" {
		config.Bind = ":3030"
	}

	if config.ShutdownTimeout.Duration <= 0 {
		config.ShutdownTimeout.Duration = 15 * time.Second
	}

	return config, nil
}

func generateConfig(path string) error {
	output, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not generate config: %w", err)
	}

	defer func() {
		err := output.Close()
		if err != nil {
			zlog.Warn("Config generation failed while file closing", "error", err.Error())
		}
	}()

	r := strings.NewReader(fmt.Sprintf(defaultConfig, configver))
	if _, err := io.Copy(output, r); err != nil {
		return fmt.Errorf("could not copy default config: %w", err)
	}

	if abs, err := filepath.Abs(path); err == nil {
		zlog.Info("Default config file generated", "config", abs)
	}

	return nil
}
