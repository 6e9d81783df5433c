package queue

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/eventq/internal/sem"
)

// synch serializes access to a context's ring.
type synch interface {
	// acquire takes exclusive access to the ring and cursors.
	acquire() error
	release()

	// inspect runs fn with local exclusion only. It is used for read-only
	// views that must not wait on a peer.
	inspect(fn func())

	orphaned() bool
}

// privateSynch guards an in-process context.
type privateSynch struct {
	mu sync.Mutex
}

func (p *privateSynch) acquire() error { p.mu.Lock(); return nil }
func (p *privateSynch) release()       { p.mu.Unlock() }
func (p *privateSynch) orphaned() bool { return false }

func (p *privateSynch) inspect(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn()
}

// sharedSynch guards a context whose cursors live in memory shared with a
// peer process. The semaphore is the cross-process lock; mu orders the
// goroutines of this process in front of it.
type sharedSynch struct {
	mu      sync.Mutex
	sem     sem.Semaphore
	timeout time.Duration
	logger  *zap.Logger

	kill     Killswitch
	killOnce sync.Once
	released atomic.Bool
	timeouts atomic.Uint64
}

func (s *sharedSynch) acquire() error {
	if s.released.Load() {
		return ErrOrphaned
	}

	s.mu.Lock()
	err := s.sem.Wait(s.timeout)
	if err == nil {
		return nil
	}
	s.mu.Unlock()

	if errors.Is(err, sem.ErrTimeout) {
		s.timeouts.Add(1)
		s.peerTimeout()
		return ErrPeerTimeout
	}
	return fmt.Errorf("queue: acquire: %w", err)
}

func (s *sharedSynch) release() {
	if err := s.sem.Post(); err != nil {
		s.logger.Warn("failed to release shared queue", zap.Error(err))
	}
	s.mu.Unlock()
}

func (s *sharedSynch) inspect(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

func (s *sharedSynch) orphaned() bool {
	return s.released.Load()
}

// peerTimeout releases the peer on the authoritative side. A side without
// a killswitch only reports the drop.
func (s *sharedSynch) peerTimeout() {
	if s.kill == nil {
		s.logger.Debug("shared queue wait timed out", zap.Duration("timeout", s.timeout))
		return
	}
	s.killOnce.Do(func() {
		s.released.Store(true)
		s.logger.Warn("peer unresponsive, releasing",
			zap.Duration("timeout", s.timeout),
			zap.Uint64("timeouts", s.timeouts.Load()))
		s.kill.Kill(ErrPeerTimeout)
	})
}
