package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Pool holds independent sessions so that concurrent callers never share an
// engine handle.
type Pool struct {
	sessions []*Session
	idle     chan *Session
	defaults Defaults
}

// NewPool builds size sessions from the same configuration. If any session
// fails to load, the ones already built are closed and the error returned.
func NewPool(size int, cfg Config, loaders Loaders, logger *slog.Logger) (*Pool, error) {
	if size <= 0 {
		size = 1
	}
	p := &Pool{idle: make(chan *Session, size)}
	for i := 0; i < size; i++ {
		s, err := New(cfg, loaders, logger)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p.sessions = append(p.sessions, s)
		p.idle <- s
	}
	p.defaults = p.sessions[0].Defaults()
	return p, nil
}

// Size returns the number of sessions.
func (p *Pool) Size() int { return len(p.sessions) }

// Defaults returns the snapshot of the first session. All sessions load the
// same model, so their snapshots agree.
func (p *Pool) Defaults() Defaults { return p.defaults }

// Do runs fn with an idle session, waiting for one if all are busy.
func (p *Pool) Do(ctx context.Context, fn func(*Session) error) error {
	var s *Session
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s = <-p.idle:
	}
	defer func() { p.idle <- s }()
	return fn(s)
}

// Synthesize is Do with a single Session.Synthesize call.
func (p *Pool) Synthesize(ctx context.Context, text string, opt Option) ([]int16, error) {
	var pcm []int16
	err := p.Do(ctx, func(s *Session) error {
		var err error
		pcm, err = s.Synthesize(ctx, text, opt)
		return err
	})
	return pcm, err
}

// Close closes every session.
func (p *Pool) Close() error {
	var errs []error
	for i, s := range p.sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
