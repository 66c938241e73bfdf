package cli

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// logHooks reports stage and HTTP timings at debug level.
type logHooks struct {
	logger *log.Logger
}

func (h *logHooks) OnPackageStart(_ context.Context, pkg string) {
	h.logger.Debug("crate started", "crate", pkg)
}

func (h *logHooks) OnPackageComplete(_ context.Context, pkg string, d time.Duration, err error) {
	h.logger.Debug("crate finished", "crate", pkg, "duration", d.Round(time.Millisecond), "err", err)
}

func (h *logHooks) OnStageStart(_ context.Context, pkg, stage string) {
	h.logger.Debug("stage started", "crate", pkg, "stage", stage)
}

func (h *logHooks) OnStageComplete(_ context.Context, pkg, stage string, d time.Duration, err error) {
	if err != nil {
		h.logger.Debug("stage failed", "crate", pkg, "stage", stage, "duration", d.Round(time.Millisecond), "err", err)
		return
	}
	h.logger.Debug("stage done", "crate", pkg, "stage", stage, "duration", d.Round(time.Millisecond))
}

func (h *logHooks) OnRequest(_ context.Context, method, host, path string) {
	h.logger.Debug("http request", "method", method, "host", host, "path", path)
}

func (h *logHooks) OnResponse(_ context.Context, method, host, path string, status int, d time.Duration) {
	h.logger.Debug("http response", "method", method, "path", path, "status", status, "duration", d.Round(time.Millisecond))
}

func (h *logHooks) OnError(_ context.Context, method, host, path string, err error) {
	h.logger.Debug("http error", "method", method, "host", host, "path", path, "err", err)
}
