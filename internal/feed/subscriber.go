package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/inkwellhq/inkwell-sync/internal/logging"
	"github.com/inkwellhq/inkwell-sync/internal/model"
)

// Handler receives decoded change-feed events.
type Handler func(ctx context.Context, ev model.Event)

// Subscriber dials dedicated change-feed connections. Each Dial produces one
// Conn holding a native pgx connection subscribed to every entity channel for
// the owner.
type Subscriber struct {
	dsn     string
	ownerID string
	log     logging.Logger
}

// NewSubscriber returns a Subscriber for the given remote DSN and owner.
func NewSubscriber(dsn, ownerID string, log logging.Logger) *Subscriber {
	return &Subscriber{dsn: dsn, ownerID: ownerID, log: log.With("module", "feed")}
}

// Dial opens the feed connection and issues LISTEN for every entity type.
func (s *Subscriber) Dial(ctx context.Context) (*Conn, error) {
	conn, err := pgx.Connect(ctx, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect change feed: %w", err)
	}

	for i := range model.Types {
		channel := Channel(&model.Types[i], s.ownerID)
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
			_ = conn.Close(ctx)
			return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
		}
	}
	return &Conn{conn: conn, log: s.log}, nil
}

// Conn is one established change-feed channel.
type Conn struct {
	conn *pgx.Conn
	log  logging.Logger
}

// Consume blocks, delivering decoded notifications to handler until the
// connection fails or ctx is cancelled. Undecodable payloads are logged and
// skipped; they never terminate the feed.
func (c *Conn) Consume(ctx context.Context, handler Handler) error {
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.conn.Close(closeCtx)
	}()

	for {
		n, err := c.conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("change feed closed: %w", err)
		}
		ev, err := Decode(n.Payload)
		if err != nil {
			c.log.Warn(ctx, "dropping malformed change notification",
				"channel", n.Channel, "error", err)
			continue
		}
		ev.ArrivedAt = time.Now().UTC()
		handler(ctx, ev)
	}
}

// Ping verifies the feed connection is still alive.
func (c *Conn) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}
