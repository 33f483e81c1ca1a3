package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	domrepo "CoinSage/internal/domain/repository"
	"CoinSage/internal/services/registry"
	applogger "CoinSage/pkg/logger"
)

// OpsHandler exposes liveness and readiness probes for the process.
type OpsHandler struct {
	store domrepo.PriceStore
	reg   *registry.Registry
	l     *applogger.Logger
}

func NewOpsHandler(store domrepo.PriceStore, reg *registry.Registry) *OpsHandler {
	return &OpsHandler{store: store, reg: reg}
}

// SetLogger injects a structured logger.
func (h *OpsHandler) SetLogger(l *applogger.Logger) { h.l = l }

func (h *OpsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.health)
	e.GET("/readyz", h.ready)
}

func (h *OpsHandler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ready reports whether the store answers within a short deadline and how
// many models the registry currently holds.
func (h *OpsHandler) ready(c echo.Context) error {
	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Health(ctx); err != nil {
			if h.l != nil {
				h.l.Warn("readiness check failed", applogger.Error(err))
			}
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
		}
	}
	resp := map[string]interface{}{"status": "ready"}
	if h.reg != nil {
		resp["models"] = len(h.reg.List())
	}
	return c.JSON(http.StatusOK, resp)
}
