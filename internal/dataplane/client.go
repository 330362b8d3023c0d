package dataplane

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/danmuck/fwdctl/internal/dataplane/wire"
	"github.com/danmuck/fwdctl/internal/hw"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotConnected    = errors.New("dataplane: not connected")
	ErrAddressRequired = errors.New("dataplane: address required")
)

// Client is an hw.Connection over one TCP session. Requests are serialized;
// a reply that arrives after its request timed out is discarded by id.
type Client struct {
	cfg Config
	rng *rand.Rand

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	nextID uint64
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg.WithDefaults(),
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Dial builds a client and connects it.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	c := NewClient(cfg)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) Address() string {
	return c.cfg.Address
}

// Connect dials with backoff until it succeeds, ctx ends or
// MaxConnectAttempts is used up.
func (c *Client) Connect(ctx context.Context) error {
	var attempt int
	for {
		attempt++
		conn, err := c.dial(ctx)
		if err == nil {
			c.swap(conn)
			log.Info().Str("addr", c.cfg.Address).Int("attempt", attempt).Msg("dataplane.Client connected")
			return nil
		}
		log.Warn().Str("addr", c.cfg.Address).Int("attempt", attempt).Err(err).Msg("dataplane.Client dial failed")
		if !c.shouldRetry(attempt) {
			return err
		}
		if err := sleepCtx(ctx, NextBackoffDelay(c.cfg.Backoff, attempt, c.rng)); err != nil {
			return err
		}
	}
}

// Redial drops the current session and connects again.
func (c *Client) Redial(ctx context.Context) error {
	c.swap(nil)
	return c.Connect(ctx)
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

func (c *Client) Call(ctx context.Context, msg hw.Message) (hw.Reply, error) {
	fr, err := c.roundTrip(ctx, wire.Request(0, msg))
	if err != nil {
		return hw.Reply{}, err
	}
	return wire.DecodeReply(fr)
}

func (c *Client) Dump(ctx context.Context, msg hw.Message) ([]hw.Args, error) {
	fr, err := c.roundTrip(ctx, wire.Request(0, msg))
	if err != nil {
		return nil, err
	}
	return wire.DecodeDumpReply(fr)
}

// Ping checks that the session is alive.
func (c *Client) Ping(ctx context.Context) error {
	fr, err := c.roundTrip(ctx, wire.Ping(0))
	if err != nil {
		return err
	}
	if fr.Type() != wire.TypePong {
		return fmt.Errorf("%w: %s", wire.ErrUnexpectedType, fr.Type())
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, req wire.Frame) (wire.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return wire.Frame{}, ErrNotConnected
	}
	conn := c.conn
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	c.nextID++
	id := c.nextID
	req.Header.ID = id

	_ = conn.SetWriteDeadline(c.deadline(ctx, c.cfg.WriteTimeout))
	if err := wire.WriteFrame(conn, req, wire.DefaultLimits()); err != nil {
		c.drop(err)
		return wire.Frame{}, err
	}
	_ = conn.SetReadDeadline(c.deadline(ctx, c.cfg.ReadTimeout))
	for {
		fr, err := wire.ReadFrame(c.reader, wire.DefaultLimits())
		if err != nil {
			return wire.Frame{}, c.fail(ctx, err)
		}
		if fr.ID() == id {
			return fr, nil
		}
		log.Debug().Uint64("id", fr.ID()).Uint64("want", id).Msg("dataplane.Client discarded stale reply")
	}
}

// fail keeps the session when a read timed out or ctx ended, since a late
// reply is skipped by id. Any other read error drops it. Callers hold c.mu.
func (c *Client) fail(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return err
	}
	c.drop(err)
	return err
}

func (c *Client) drop(err error) {
	log.Warn().Str("addr", c.cfg.Address).Err(err).Msg("dataplane.Client session lost")
	_ = c.conn.Close()
	c.conn = nil
	c.reader = nil
}

func (c *Client) deadline(ctx context.Context, limit time.Duration) time.Time {
	d := time.Now().Add(limit)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	if c.cfg.Address == "" {
		return nil, ErrAddressRequired
	}
	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	return dialer.DialContext(ctx, "tcp", c.cfg.Address)
}

func (c *Client) swap(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.reader = nil
	if conn != nil {
		c.reader = bufio.NewReader(conn)
	}
}

func (c *Client) shouldRetry(attempt int) bool {
	if c.cfg.MaxConnectAttempts <= 0 {
		return true
	}
	return attempt < c.cfg.MaxConnectAttempts
}
