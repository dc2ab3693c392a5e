package config

import (
	"errors"

	"github.com/andrew-solarstorm/go-packages/common"
)

type PersistenceConfig struct {
	// DBPath is the path to the BoltDB file holding pairs, balances and receipts.
	// Default: "./data/zap.db"
	DBPath string

	// PersistenceEnabled controls whether state is persisted to disk.
	// Default: true
	PersistenceEnabled bool

	// PersistInterval is how often state is batch-saved to disk (in seconds).
	// Default: 30
	PersistInterval int

	// PostgresDSN, when set, journals committed runs to Postgres instead of BoltDB.
	PostgresDSN string
}

func (c *PersistenceConfig) Key() string {
	return PERSISTENCE_CONFIG_KEY
}

func (c *PersistenceConfig) Load() error {
	c.DBPath = common.GetEnvOrDefault("ZAP_DB_PATH", "./data/zap.db")
	c.PersistenceEnabled = common.GetEnvOrDefault("ZAP_PERSISTENCE_ENABLED", "true") == "true"
	c.PersistInterval = common.GetEnvOrDefaultInt("ZAP_PERSIST_INTERVAL", 30)
	c.PostgresDSN = common.GetEnvOrDefault("ZAP_POSTGRES_DSN", "")
	return c.Validate()
}

func (c *PersistenceConfig) Validate() error {
	if c.PersistenceEnabled && c.DBPath == "" {
		return errors.New("invalid persistence config: db path is required")
	}
	if c.PersistInterval <= 0 {
		return errors.New("invalid persistence config: persist interval must be positive")
	}
	return nil
}
