package main

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"xstudio-chat-backend/internal/config"
	"xstudio-chat-backend/internal/logger"
	"xstudio-chat-backend/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.IsProduction(), cfg.LogLevel)

	s, err := server.NewServer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create server")
	}
	s.StartSweep(context.Background())

	mode := "rule-based responder"
	if !cfg.UseRules {
		mode = "model " + cfg.OllamaModel + " at " + cfg.OllamaURL
	}
	addr := ":" + cfg.Port
	log.Info().Str("addr", addr).Str("mode", mode).Msg("chat API server listening")
	if err := http.ListenAndServe(addr, s.Router()); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
