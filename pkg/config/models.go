package config

import "time"

type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Transport TransportConfig
	Bridge    BridgeConfig
	Storage   StorageConfig
}

type ServerConfig struct {
	Address         string
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

type ConnectionLimitConfig struct {
	MaxPerIP int    `mapstructure:"maxPerIP"`
	Mode     string `mapstructure:"mode"` // "reject" or "cycle"
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwtSecret"`
	TokenTTL  time.Duration `mapstructure:"tokenTTL"`
}

type TransportConfig struct {
	ReadTimeout      time.Duration `mapstructure:"readTimeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshakeTimeout"`
	SendBuffer       int           `mapstructure:"sendBuffer"`
}

type BridgeConfig struct {
	// Endpoint is the gateway's own websocket base URL, e.g. "ws://localhost:8001".
	Endpoint    string        `mapstructure:"endpoint"`
	DialTimeout time.Duration `mapstructure:"dialTimeout"`
	Workers     int           `mapstructure:"workers"`
	QueueSize   int           `mapstructure:"queueSize"`
}

type StorageConfig struct {
	Path string `mapstructure:"path"`
}
