// Package torsync waits for an app's hidden service address to be
// published by the tor server.
//
// The wait is best-effort: the address file is produced asynchronously
// by the anonymity-network side of the app, and a timeout is a warning,
// never a failure of the start operation.
package torsync

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.uber.org/atomic"

	"github.com/selfhostd/appctl/config"
	"github.com/selfhostd/appctl/interfaces"
)

// State is the synchronizer's observable state for one wait.
type State int32

const (
	// StateNotRequired means the app has no privacy-routing config and
	// the wait is skipped entirely.
	StateNotRequired State = iota

	// StateWaiting means the routing config exists and the address file
	// is being polled for.
	StateWaiting

	// StateReady means the address file was observed.
	StateReady

	// StateTimedOut means the poll budget was exhausted. Non-fatal.
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateNotRequired:
		return "not-required"
	case StateWaiting:
		return "waiting"
	case StateReady:
		return "ready"
	case StateTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// Synchronizer polls for hidden service readiness.
type Synchronizer struct {
	cfg   *config.Config
	rt    interfaces.ComposeRuntime
	log   *slog.Logger
	state *atomic.Int32
}

// New creates a Synchronizer using rt to start the supporting services.
func New(cfg *config.Config, rt interfaces.ComposeRuntime, log *slog.Logger) *Synchronizer {
	return &Synchronizer{cfg: cfg, rt: rt, log: log, state: atomic.NewInt32(int32(StateNotRequired))}
}

// LastState returns the state reached by the most recent Wait.
func (s *Synchronizer) LastState() State {
	return State(s.state.Load())
}

// Wait runs the readiness state machine for id within project.
//
// Without a routing config it returns StateNotRequired immediately.
// Otherwise it starts the reverse proxy and then the tor server and
// polls for the address file until it appears, the attempt budget runs
// out, or ctx is done. The returned error is non-nil only when starting
// the supporting services fails; a timeout is reported via the state.
func (s *Synchronizer) Wait(ctx context.Context, id interfaces.AppID, project interfaces.ComposeProject) (State, error) {
	if !fileExists(s.cfg.TorrcFile(id)) {
		s.log.Warn("app has no tor configuration and will not be reachable over tor", "app", id)
		return s.setState(StateNotRequired), nil
	}

	hostnameFile := s.cfg.HiddenServiceHostnameFile(id)
	if fileExists(hostnameFile) {
		return s.setState(StateReady), nil
	}

	s.setState(StateWaiting)
	if err := s.rt.Up(ctx, project, "app_proxy"); err != nil {
		return StateWaiting, err
	}
	if err := s.rt.Up(ctx, project, "tor"); err != nil {
		return StateWaiting, err
	}

	interval := s.cfg.HiddenPollInterval()
	for attempt := 0; attempt < s.cfg.HiddenAttempts; attempt++ {
		if fileExists(hostnameFile) {
			s.log.Info("hidden service address resolved", "app", id)
			return s.setState(StateReady), nil
		}
		select {
		case <-ctx.Done():
			s.log.Warn("hidden service wait cancelled", "app", id, "err", ctx.Err())
			return s.setState(StateTimedOut), nil
		case <-time.After(interval):
		}
	}

	s.log.Warn("continuing without hidden service", "app", id, "err", interfaces.ErrSyncTimeout)
	return s.setState(StateTimedOut), nil
}

func (s *Synchronizer) setState(state State) State {
	s.state.Store(int32(state))
	return state
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
