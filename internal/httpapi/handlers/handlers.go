package handlers

import (
	"context"

	"framefarm/internal/pkg/logger"
	"framefarm/internal/ports"
	"framefarm/internal/repositories"
)

// Pinger is a dependency the deep health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	// Runs is nil when no ledger database is configured.
	Runs  repositories.RunStore
	DB    Pinger
	Queue Pinger
	SP    ports.StorageProvider
	Log   *logger.Logger

	// Version is reported by /health.
	Version string
}

type Handler struct {
	runs  repositories.RunStore
	db    Pinger
	queue Pinger
	sp    ports.StorageProvider
	log   *logger.Logger

	version string
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	version := d.Version
	if version == "" {
		version = "dev"
	}
	return &Handler{
		runs:  d.Runs,
		db:    d.DB,
		queue: d.Queue,
		sp:    d.SP,
		log:   log.WithComponent("httpapi"),

		version: version,
	}
}
