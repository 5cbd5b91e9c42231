package main

import (
	"log/slog"
	"sync/atomic"
)

// agentTracker is the agent's tracking sub-service. Starting it arms
// the controller's share loop; there is no separate process to manage,
// so it is just the running flag plus logging.
type agentTracker struct {
	running atomic.Bool
	logger  *slog.Logger
}

func newAgentTracker(logger *slog.Logger) *agentTracker {
	return &agentTracker{logger: logger}
}

func (t *agentTracker) Start() error {
	if t.running.Swap(true) {
		return nil
	}
	t.logger.Info("tracking started")
	return nil
}

func (t *agentTracker) Stop() {
	if t.running.Swap(false) {
		t.logger.Info("tracking stopped")
	}
}

func (t *agentTracker) Running() bool {
	return t.running.Load()
}
