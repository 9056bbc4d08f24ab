package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sungminna/upbit-scalping-bot/internal/state"
)

// StateReader exposes a consistent copy of the trading state
type StateReader interface {
	Snapshot() state.Snapshot
}

// StatusHandler serves the read-only bot state
type StatusHandler struct {
	state StateReader
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(st StateReader) *StatusHandler {
	return &StatusHandler{state: st}
}

// GetState returns the index ratio, trade amount, universe and buy times
// GET /api/v1/state
func (h *StatusHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.state.Snapshot())
}

// GetScheduledMarkets returns the current universe
// GET /api/v1/markets/scheduled
func (h *StatusHandler) GetScheduledMarkets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"markets": h.state.Snapshot().ScheduledMarkets})
}
