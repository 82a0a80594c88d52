// Package config loads chatik client configuration from an optional config
// file, a .env file and CHATIK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Credential backends.
const (
	CredentialsSQLite  = "sqlite"
	CredentialsKeyring = "keyring"
	CredentialsMemory  = "memory"
)

// Config holds all configuration for the client.
type Config struct {
	APIURL    string `mapstructure:"api_url"`
	StreamURL string `mapstructure:"stream_url"` // Defaults to <api_url>/stream
	Env       string `mapstructure:"env"`
	LogLevel  string `mapstructure:"log_level"`

	DataDir     string `mapstructure:"data_dir"`
	Credentials string `mapstructure:"credentials"`

	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	QueryCacheTTL  time.Duration `mapstructure:"query_cache_ttl"`

	// Stream reconnect. Off by default: a closed stream stays closed.
	Reconnect            bool          `mapstructure:"reconnect"`
	ReconnectMaxInterval time.Duration `mapstructure:"reconnect_max_interval"`

	TailnetHostname string `mapstructure:"tailnet_hostname"` // Dial through tsnet when set
	BridgeAddr      string `mapstructure:"bridge_addr"`
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatik"
	}
	return filepath.Join(home, ".config", "chatik")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_url", "http://localhost:8080/api/v1")
	v.SetDefault("stream_url", "")
	v.SetDefault("env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("credentials", CredentialsSQLite)
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("query_cache_ttl", 0)
	v.SetDefault("reconnect", false)
	v.SetDefault("reconnect_max_interval", time.Minute)
	v.SetDefault("tailnet_hostname", "")
	v.SetDefault("bridge_addr", "127.0.0.1:7878")
}

// Load reads configuration. filename may be empty, in which case chatik.yaml
// is looked up in the working directory and the default data directory; a
// missing file is not an error.
func Load(filename string) (*Config, error) {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CHATIK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filename != "" {
		v.SetConfigFile(filename)
	} else {
		v.SetConfigName("chatik")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(defaultDataDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if filename != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("invalid api_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid api_url %q: scheme must be http or https", c.APIURL)
	}

	switch c.Credentials {
	case CredentialsSQLite, CredentialsKeyring, CredentialsMemory:
	default:
		return fmt.Errorf("invalid credentials backend %q", c.Credentials)
	}

	if c.RequestTimeout < 0 || c.QueryCacheTTL < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// StreamBase returns the stream endpoint prefix.
func (c *Config) StreamBase() string {
	if c.StreamURL != "" {
		return strings.TrimSuffix(c.StreamURL, "/")
	}
	return strings.TrimSuffix(c.APIURL, "/") + "/stream"
}

// DBPath returns the location of the sqlite client database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "client.db")
}
