// Package session implements the per-connection replay state machine.
//
// A Session owns a private cursor into the capture file. Open sends the
// upfront burst, then every Fire sends one record until the file is
// exhausted. The caller owns the timer: it arms one after Open and re-arms
// after each Fire that returns rearm=true.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/SmitUplenchwar2687/wsreplay/internal/clock"
	xlog "github.com/SmitUplenchwar2687/wsreplay/internal/log"
	"github.com/SmitUplenchwar2687/wsreplay/internal/metrics"
	"github.com/SmitUplenchwar2687/wsreplay/internal/playback"
	"github.com/SmitUplenchwar2687/wsreplay/internal/record"
	"github.com/SmitUplenchwar2687/wsreplay/internal/recorder"
)

var (
	// ErrClosed is returned by Open and Fire after Close.
	ErrClosed = errors.New("session: closed")
	// ErrNotSteady is returned by Fire before Open and by a second Open.
	ErrNotSteady = errors.New("session: not in steady state")
)

// Config is shared read-only by every session of a process.
type Config struct {
	Delimiter  byte
	SourcePath string
	Interval   time.Duration
	Upfront    playback.Policy
}

// Validate checks the config before any session is created.
func (c *Config) Validate() error {
	if c.SourcePath == "" {
		return errors.New("session: source path is empty")
	}
	if c.Interval < 0 {
		return fmt.Errorf("session: interval must not be negative, got %s", c.Interval)
	}
	return c.Upfront.Validate()
}

// Sender transmits one record to the connected client. Send returns only
// once the record was handed to the transport.
type Sender interface {
	Send(ctx context.Context, rec []byte) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, rec []byte) error

func (f SenderFunc) Send(ctx context.Context, rec []byte) error { return f(ctx, rec) }

// Error reports the operation that terminated a session.
type Error struct {
	Op  string // metrics.ReasonRead or metrics.ReasonSend
	Err error
}

func (e *Error) Error() string { return "session " + e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Session is the replay state of one connection. Not safe for concurrent
// use; the connection host drives it from a single goroutine.
type Session struct {
	id     string
	cfg    *Config
	reader *record.Reader
	sender Sender
	active bool
	state  State
	sent   uint64

	log   zerolog.Logger
	trace *recorder.Recorder
	clock clock.Clock
}

// Option customises a Session.
type Option func(*Session)

// WithLogger sets the parent logger; the session adds its id.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithRecorder traces every forwarded record.
func WithRecorder(r *recorder.Recorder) Option {
	return func(s *Session) { s.trace = r }
}

// WithClock sets the time source for trace timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithID overrides the generated session id.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// New opens a fresh read cursor on cfg.SourcePath for one connection.
func New(cfg *Config, sender Sender, opts ...Option) (*Session, error) {
	s := &Session{
		id:     uuid.NewString(),
		cfg:    cfg,
		sender: sender,
		active: true,
		state:  StateBurst,
		log:    xlog.WithComponent("session"),
		clock:  clock.NewReal(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str(xlog.FieldSessionID, s.id).Logger()

	r, err := record.Open(cfg.SourcePath, cfg.Delimiter)
	if err != nil {
		return nil, err
	}
	s.reader = r
	return s, nil
}

func (s *Session) ID() string { return s.id }

// Active reports whether records remain to be sent.
func (s *Session) Active() bool { return s.active }

func (s *Session) State() State { return s.state }

// Sent returns the number of Send calls made, empty records included.
func (s *Session) Sent() uint64 { return s.sent }

// Open runs the upfront burst. The caller must arm the timer afterwards
// regardless of Active.
func (s *Session) Open(ctx context.Context) error {
	switch s.state {
	case StateClosed:
		return ErrClosed
	case StateBurst:
	default:
		return fmt.Errorf("open in state %s: %w", s.state, ErrNotSteady)
	}
	if s.sent > 0 {
		return fmt.Errorf("open called twice: %w", ErrNotSteady)
	}

	start := s.sent
	if err := s.burst(ctx); err != nil {
		return err
	}
	s.setState(StateSteady)
	s.log.Info().
		Str(xlog.FieldPhase, metrics.PhaseBurst).
		Uint64("records", s.sent-start).
		Int64("bytes", s.reader.BytesRead()).
		Bool("active", s.active).
		Msg("upfront burst sent")
	return nil
}

func (s *Session) burst(ctx context.Context) error {
	policy := s.cfg.Upfront
	switch policy.Kind() {
	case playback.KindCount:
		// Every read is forwarded even after EOF; see DESIGN.md.
		for i := uint64(0); i < policy.N(); i++ {
			if _, _, err := s.forward(ctx, metrics.PhaseBurst); err != nil {
				return err
			}
		}
		return nil
	case playback.KindPercentage:
		target := policy.Target(s.reader.Size())
		var total int64
		// The first read is unconditional: p=0 still sends one record.
		for {
			n, eof, err := s.forward(ctx, metrics.PhaseBurst)
			if err != nil {
				return err
			}
			total += int64(n)
			if eof || float64(total) >= target {
				return nil
			}
		}
	default:
		return policy.Validate()
	}
}

// Fire sends exactly one record. rearm is false once the file is
// exhausted; the session is then Idle and has released its file.
func (s *Session) Fire(ctx context.Context) (rearm bool, err error) {
	switch s.state {
	case StateSteady:
	case StateIdle:
		return false, nil
	case StateClosed:
		return false, ErrClosed
	default:
		return false, fmt.Errorf("fire in state %s: %w", s.state, ErrNotSteady)
	}

	if _, _, err := s.forward(ctx, metrics.PhaseSteady); err != nil {
		return false, err
	}
	if s.active {
		return true, nil
	}

	s.setState(StateIdle)
	if err := s.reader.Close(); err != nil {
		s.log.Warn().Err(err).Msg("closing capture")
	}
	s.log.Info().Uint64("records", s.sent).Msg("capture exhausted")
	return false, nil
}

// forward reads the next record and sends it, even when it is empty.
func (s *Session) forward(ctx context.Context, phase string) (int, bool, error) {
	rec, n, eof, err := s.reader.Next()
	if err != nil {
		return n, false, &Error{Op: metrics.ReasonRead, Err: err}
	}
	if eof || s.reader.Drained() {
		s.active = false
	}
	if rec == nil {
		rec = []byte{}
	}
	if err := s.sender.Send(ctx, rec); err != nil {
		return n, eof, &Error{Op: metrics.ReasonSend, Err: err}
	}
	s.sent++
	metrics.RecordSent(phase, n)

	if s.trace != nil {
		d := recorder.Delivery{
			Time:      s.clock.Now(),
			SessionID: s.id,
			Seq:       s.sent,
			Phase:     phase,
			Bytes:     n,
			EOF:       eof,
		}
		if err := s.trace.Record(d); err != nil {
			s.log.Warn().Err(err).Msg("trace write failed")
		}
	}
	return n, eof, nil
}

// Close releases the file handle. It can be called in any state and more
// than once.
func (s *Session) Close() error {
	if s.state == StateClosed {
		return nil
	}
	s.setState(StateClosed)
	s.active = false
	return s.reader.Close()
}

func (s *Session) setState(next State) {
	s.log.Debug().Stringer("from", s.state).Stringer("to", next).Msg("state change")
	s.state = next
}
