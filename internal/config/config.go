package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config holds server configuration values.
type Config struct {
	ServerID  string `mapstructure:"server_id" yaml:"server_id"`
	Host      string `mapstructure:"host" yaml:"host"`
	Port      int    `mapstructure:"port" yaml:"port"`
	AdminAddr string `mapstructure:"admin_addr" yaml:"admin_addr"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	LogFile  string `mapstructure:"log_file" yaml:"log_file"`

	LivenessInterval time.Duration `mapstructure:"liveness_interval" yaml:"liveness_interval"`
	LivenessTimeout  time.Duration `mapstructure:"liveness_timeout" yaml:"liveness_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	OutboundQueue    int           `mapstructure:"outbound_queue" yaml:"outbound_queue"`
	MaxFrameSize     int           `mapstructure:"max_frame_size" yaml:"max_frame_size"`
	InboundRate      float64       `mapstructure:"inbound_rate" yaml:"inbound_rate"`
	InboundBurst     int           `mapstructure:"inbound_burst" yaml:"inbound_burst"`
	MaxQueuedIntents int           `mapstructure:"max_queued_intents" yaml:"max_queued_intents"`

	MaxPlayers int    `mapstructure:"max_players" yaml:"max_players"`
	MinPlayers int    `mapstructure:"min_players" yaml:"min_players"`
	MaxRounds  int    `mapstructure:"max_rounds" yaml:"max_rounds"`
	RoomName   string `mapstructure:"room_name" yaml:"room_name"`
	Seed       uint64 `mapstructure:"seed" yaml:"seed"`

	LobbyURL     string        `mapstructure:"lobby_url" yaml:"lobby_url"`
	LobbyToken   string        `mapstructure:"lobby_token" yaml:"lobby_token"`
	LobbyTimeout time.Duration `mapstructure:"lobby_timeout" yaml:"lobby_timeout"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	AdminTokenHash      string   `mapstructure:"admin_token_hash" yaml:"admin_token_hash"`
	AdminAllowedOrigins []string `mapstructure:"admin_allowed_origins" yaml:"admin_allowed_origins"`
	DatabasePath        string   `mapstructure:"database_path" yaml:"database_path"`

	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Host:              "",
		Port:              7777,
		AdminAddr:         ":7780",
		LogLevel:          "info",
		LivenessInterval:  5 * time.Second,
		LivenessTimeout:   30 * time.Second,
		WriteTimeout:      5 * time.Second,
		OutboundQueue:     256,
		MaxFrameSize:      64 << 10,
		InboundRate:       60,
		InboundBurst:      120,
		MaxPlayers:        8,
		MinPlayers:        2,
		MaxRounds:         3,
		RoomName:          "arena",
		LobbyTimeout:      2 * time.Second,
		JWTIssuer:         "wirearena",
		JWTAudience:       "wirearena",
		DatabasePath:      "wirearena.db",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
	}
}

// ListenAddr is the game listener address.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.LivenessInterval <= 0 {
		errs = append(errs, errors.New("liveness_interval must be positive"))
	}
	if c.LivenessTimeout < c.LivenessInterval {
		errs = append(errs, errors.New("liveness_timeout must be at least liveness_interval"))
	}
	if c.MaxPlayers < 1 {
		errs = append(errs, errors.New("max_players must be at least 1"))
	}
	if c.MinPlayers < 1 || c.MinPlayers > c.MaxPlayers {
		errs = append(errs, fmt.Errorf("min_players must be within 1..%d", c.MaxPlayers))
	}
	if c.MaxRounds < 1 {
		errs = append(errs, errors.New("max_rounds must be at least 1"))
	}
	if c.MaxQueuedIntents < 0 {
		errs = append(errs, errors.New("max_queued_intents must not be negative"))
	}
	return errors.Join(errs...)
}
