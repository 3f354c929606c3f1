package http

import (
	"github.com/nats-io/nats.go"

	"github.com/meridianlabs/meridian/internal/adapters/postgres"
	"github.com/meridianlabs/meridian/internal/adapters/valkey"
	"github.com/meridianlabs/meridian/internal/core/ports"
	"github.com/meridianlabs/meridian/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Registry *usecases.RegistryService
	Router   *usecases.RouterService
	Builds   ports.BuildRepository
	NATS     *nats.Conn
	DB       *postgres.DB
	Cache    *valkey.Cache
}
