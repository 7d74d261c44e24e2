package server

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pyropy/partstream/core/constants"
)

type Config struct {
	Server struct {
		Host string `envconfig:"SERVER_HOST"`
		Port int    `envconfig:"SERVER_PORT"`
	}
	Transfer struct {
		FilePath       string        `envconfig:"FILE_PATH"`
		ChunkSize      int           `envconfig:"CHUNK_SIZE"`
		Partitions     int           `envconfig:"PARTITIONS"`
		RepairInterval time.Duration `envconfig:"REPAIR_INTERVAL"`
	}
	Sessions struct {
		IdleTimeout      time.Duration `envconfig:"SESSION_IDLE_TIMEOUT"`
		EncodedCacheSize int           `envconfig:"ENCODED_CACHE_SIZE"`
	}
}

func DefaultConfig() *Config {
	var cfg Config
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 41234
	cfg.Transfer.ChunkSize = constants.CHUNK_SIZE_BYTES
	cfg.Transfer.Partitions = constants.NUM_PARTITIONS
	cfg.Transfer.RepairInterval = constants.REPAIR_INTERVAL
	cfg.Sessions.IdleTimeout = constants.SESSION_IDLE_TIMEOUT
	cfg.Sessions.EncodedCacheSize = constants.ENCODED_CACHE_SIZE

	return &cfg
}

// GetConfig returns the default config overridden by environment variables.
func GetConfig() (*Config, error) {
	cfg := DefaultConfig()
	err := envconfig.Process("", cfg)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}
