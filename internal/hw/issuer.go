package hw

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/danmuck/fwdctl/internal/observability"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds one command round trip.
const DefaultTimeout = time.Second

type Config struct {
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{Timeout: DefaultTimeout}
}

func (c Config) WithDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

type Option func(*Issuer)

// WithJournal records every issued command into j.
func WithJournal(j *Journal) Option {
	return func(q *Issuer) {
		q.journal = j
	}
}

// Issuer sends commands over a Connection one at a time and waits for the
// outcome for at most Config.Timeout.
type Issuer struct {
	conn    Connection
	cfg     Config
	journal *Journal
}

func NewIssuer(conn Connection, cfg Config, opts ...Option) *Issuer {
	q := &Issuer{conn: conn, cfg: cfg.WithDefaults()}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q
}

func (q *Issuer) Timeout() time.Duration {
	return q.cfg.Timeout
}

// Issue sends a Create or Delete command and blocks until the dataplane
// answers or the timeout elapses. Once sent, a command is not cancelled by ctx.
func (q *Issuer) Issue(ctx context.Context, cmd Cmd) (Reply, error) {
	kind := cmd.Kind()
	if kind != KindCreate && kind != KindDelete {
		return Reply{}, fmt.Errorf("%w: %s for %s", ErrInvalidKind, kind, cmd)
	}
	if err := q.ready(ctx); err != nil {
		return Reply{}, err
	}
	msg := cmd.Message()
	q.journal.record(cmd)

	start := time.Now()
	reply, err := bounded(ctx, q.cfg.Timeout, func(callCtx context.Context) (Reply, error) {
		return q.conn.Call(callCtx, msg)
	})
	if err == nil && reply.Retval < 0 {
		err = &RejectedError{Cmd: cmd.String(), Retval: reply.Retval}
	}
	q.observe(msg, err, time.Since(start))
	return reply, err
}

// Dump issues a Dump command and returns the records the dataplane holds.
func (q *Issuer) Dump(ctx context.Context, cmd Cmd) ([]Args, error) {
	if cmd.Kind() != KindDump {
		return nil, fmt.Errorf("%w: %s for %s", ErrInvalidKind, cmd.Kind(), cmd)
	}
	if err := q.ready(ctx); err != nil {
		return nil, err
	}
	msg := cmd.Message()
	q.journal.record(cmd)

	start := time.Now()
	records, err := bounded(ctx, q.cfg.Timeout, func(callCtx context.Context) ([]Args, error) {
		return q.conn.Dump(callCtx, msg)
	})
	q.observe(msg, err, time.Since(start))
	return records, err
}

func (q *Issuer) ready(ctx context.Context) error {
	if q.conn == nil {
		return ErrNoConnection
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}
	return nil
}

func (q *Issuer) observe(msg Message, err error, elapsed time.Duration) {
	outcome := outcomeFor(err)
	observability.RecordCommand(msg.Object, msg.Kind.String(), outcome, elapsed)
	if err != nil {
		log.Warn().
			Str("msg", msg.String()).
			Str("outcome", outcome).
			Dur("elapsed", elapsed).
			Err(err).
			Msg("hw.Issuer command failed")
		return
	}
	log.Debug().
		Str("msg", msg.String()).
		Dur("elapsed", elapsed).
		Msg("hw.Issuer command ok")
}

// bounded runs fn detached from ctx cancellation and gives up after timeout
// even when fn ignores its context.
func bounded[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(callCtx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return r.v, classify(r.err)
		}
		return r.v, nil
	case <-callCtx.Done():
		var zero T
		return zero, fmt.Errorf("%w: no reply after %s", ErrTransportTimeout, timeout)
	}
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrTransportTimeout),
		errors.Is(err, ErrTransportFailure),
		errors.Is(err, ErrRejectedByHardware):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTransportTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTransportTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrTransportFailure, err)
}

func isTimeout(err error) bool {
	return errors.Is(err, ErrTransportTimeout)
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTransportTimeout):
		return "timeout"
	case errors.Is(err, ErrRejectedByHardware):
		return "rejected"
	default:
		return "failure"
	}
}
