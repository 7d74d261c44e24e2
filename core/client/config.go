package client

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pyropy/partstream/core/constants"
)

type Config struct {
	Client struct {
		Host string `envconfig:"CLIENT_HOST"`
		Port int    `envconfig:"CLIENT_PORT"`
	}
	Transfer struct {
		RequestInterval time.Duration `envconfig:"REQUEST_INTERVAL"`
		// MaxRetries bounds resends of an unanswered request, 0 retries forever.
		MaxRetries      int           `envconfig:"MAX_RETRIES"`
		RetryMissing    bool          `envconfig:"RETRY_MISSING"`
		StallTimeout    time.Duration `envconfig:"STALL_TIMEOUT"`
	}
	Playback struct {
		Command string `envconfig:"PLAYER_CMD"`
	}
	History struct {
		Path string `envconfig:"HISTORY_PATH"`
	}
}

func DefaultConfig() *Config {
	var cfg Config
	cfg.Client.Host = "0.0.0.0"
	cfg.Client.Port = constants.CLIENT_PORT
	cfg.Transfer.RequestInterval = constants.REQUEST_INTERVAL
	cfg.History.Path = ".partstream"

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
