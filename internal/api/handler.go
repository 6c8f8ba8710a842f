package api

import (
	"log/slog"

	"github.com/shaiso/Relay/internal/registry"
	"github.com/shaiso/Relay/internal/runtime"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	engine *runtime.Engine
	flows  *registry.FlowRegistry
	logger *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Engine *runtime.Engine
	Flows  *registry.FlowRegistry
	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		engine: cfg.Engine,
		flows:  cfg.Flows,
		logger: cfg.Logger,
	}
}
