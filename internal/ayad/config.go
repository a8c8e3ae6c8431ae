package ayad

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration for ayad.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Modules ModulesConfig `toml:"modules"`
}

// ServerConfig defines shared server settings.
type ServerConfig struct {
	Broker    string     `toml:"broker"`
	Identity  string     `toml:"identity"`
	TopicBase string     `toml:"topic_base"`
	LogLevel  string     `toml:"log_level"`
	LogFormat string     `toml:"log_format"`
	LogOutput string     `toml:"log_output"`
	StateDir  string     `toml:"state_dir"`
	TLS       TLSConfig  `toml:"tls"`
	Auth      AuthConfig `toml:"auth"`
}

// TLSConfig holds TLS paths for MQTT.
type TLSConfig struct {
	CA   string `toml:"ca"`
	Cert string `toml:"cert"`
	Key  string `toml:"key"`
}

// AuthConfig holds MQTT auth credentials.
type AuthConfig struct {
	User string `toml:"user"`
	Pass string `toml:"pass"`
}

// ModulesConfig holds module configurations.
type ModulesConfig struct {
	EmbeddedMQTT EmbeddedMQTTConfig `toml:"embedded_mqtt"`
	PlayerMusic  PlayerConfig       `toml:"player_music"`
	PlayerVerse  PlayerConfig       `toml:"player_verse"`
	Scripture    ScriptureConfig    `toml:"scripture"`
	Media        MediaConfig        `toml:"media"`
	Newsletter   NewsletterConfig   `toml:"newsletter"`
	Tracks       TracksConfig       `toml:"tracks"`
}

// PlayerConfig configures a player module instance.
type PlayerConfig struct {
	Enabled   bool   `toml:"enabled"`
	NodeID    string `toml:"node_id"`
	MPVSocket string `toml:"mpv_socket"`
	MPVBinary string `toml:"mpv_binary"`
}

// ScriptureConfig configures the scripture source module.
type ScriptureConfig struct {
	Enabled    bool   `toml:"enabled"`
	NodeID     string `toml:"node_id"`
	CorpusPath string `toml:"corpus_path"`
	ReciterURL string `toml:"reciter_url"`
}

// MediaConfig configures the media transcript source module.
type MediaConfig struct {
	Enabled   bool   `toml:"enabled"`
	NodeID    string `toml:"node_id"`
	IndexPath string `toml:"index_path"`
}

// NewsletterConfig configures the newsletter source module.
type NewsletterConfig struct {
	Enabled        bool   `toml:"enabled"`
	NodeID         string `toml:"node_id"`
	FeedURL        string `toml:"feed_url"`
	CachePath      string `toml:"cache_path"`
	RefreshMinutes int64  `toml:"refresh_minutes"`
}

// TracksConfig configures the music catalog module.
type TracksConfig struct {
	Enabled bool     `toml:"enabled"`
	NodeID  string   `toml:"node_id"`
	Roots   []string `toml:"roots"`
	Listen  string   `toml:"listen"`
}

// EmbeddedMQTTConfig configures the embedded MQTT broker.
type EmbeddedMQTTConfig struct {
	Enabled        bool   `toml:"enabled"`
	Listen         string `toml:"listen"`
	AllowAnonymous bool   `toml:"allow_anonymous"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	TLSCA          string `toml:"tls_ca"`
	TLSCert        string `toml:"tls_cert"`
	TLSKey         string `toml:"tls_key"`
}

// LoadConfig loads a config file from path.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfigPath returns the default config location.
func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "aya", "ayad.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "aya", "ayad.toml"), nil
}
