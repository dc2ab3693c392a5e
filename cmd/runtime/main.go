package main

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/zap-engine/internal/common"
	"github.com/hxuan190/zap-engine/internal/config"
	"github.com/hxuan190/zap-engine/internal/http"
	"github.com/hxuan190/zap-engine/internal/services"
	"github.com/hxuan190/zap-engine/internal/services/chain"
	"github.com/hxuan190/zap-engine/internal/services/market"
	"github.com/hxuan190/zap-engine/internal/services/zap"
)

func main() {
	common.InitRuntime()

	// a missing .env is fine, the environment may already be set
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("no .env file loaded")
	}

	general := &config.GeneralConfig{}
	if err := general.Load(); err != nil {
		log.Error().Err(err).Msg("failed to load general config")
		return
	}
	services.ConfigureLogging(general.LogLevel, general.Env)

	// di container config
	conf := container.NewConf(
		general,
		&config.ZapConfig{},
		&config.PersistenceConfig{},
	)

	// di container, in dependency order
	dic, err := container.New(
		// config
		conf,

		// services
		&chain.Service{},
		&market.Service{},
		&zap.Service{},

		&http.HTTPService{},
	)
	if err != nil {
		log.Error().Err(err).Msg("failed to create di container")
		return
	}

	// Run blocks until SIGINT/SIGTERM
	if err := dic.Run(); err != nil {
		log.Error().Err(err).Msg("failed to run di container")
		return
	}

	// Run doesn't call Stop(), we must do it manually
	log.Info().Msg("Shutting down services...")
	if err := dic.Stop(); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
	log.Info().Msg("Shutdown complete")
}
