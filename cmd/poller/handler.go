package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/appointment-watch/internal/domain"
)

type cycleRunner interface {
	RunCycle(ctx context.Context) (*domain.CycleReport, error)
}

// Handler adapts one poll cycle to a scheduled Lambda invocation.
type Handler struct {
	runner cycleRunner
	logger *slog.Logger
}

func NewHandler(runner cycleRunner, logger *slog.Logger) *Handler {
	return &Handler{runner: runner, logger: logger}
}

// RunOnce handles an EventBridge schedule event; the payload is ignored.
func (h *Handler) RunOnce(ctx context.Context, _ json.RawMessage) error {
	h.logger.Info("running scheduled poll cycle")
	return h.runOnce(ctx)
}

// runOnce treats an overlapping cycle as success so the scheduler does not retry it.
func (h *Handler) runOnce(ctx context.Context) error {
	report, err := h.runner.RunCycle(ctx)
	if errors.Is(err, domain.ErrCycleInProgress) {
		h.logger.Info("poll cycle skipped", "reason", err)
		return nil
	}
	if err != nil {
		return err
	}
	h.logger.Info("poll cycle report",
		"scanned", report.Scanned,
		"purged", report.Purged,
		"results", len(report.Results),
	)
	return nil
}
