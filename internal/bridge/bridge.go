// Package bridge publishes events into the gateway from the synchronous write
// tier. Rather than sharing an in-process bus, every publish acts as an
// ordinary WebSocket client: it mints a token for the acting identity, dials
// the gateway's own endpoint, sends a single frame, and hangs up. The publish
// path therefore can never diverge from the authorization rules real
// listeners go through.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/coder/websocket"

	"github.com/louieee/chatclone/internal/auth"
	"github.com/louieee/chatclone/internal/event"
	"github.com/louieee/chatclone/pkg/config"
)

// ErrQueueFull is returned when all workers are busy and the backlog is at
// capacity. Delivery is best-effort; callers log and move on.
var ErrQueueFull = errors.New("bridge queue full")

type job struct {
	url     string
	payload []byte
	result  chan error
}

// Bridge owns a bounded worker pool so concurrent HTTP handlers can publish
// without each spawning its own dial, and without sharing a single
// connection attempt between unrelated requests.
type Bridge struct {
	logger *slog.Logger
	issuer *auth.Issuer
	config config.BridgeConfig

	jobs      chan job
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func New(logger *slog.Logger, issuer *auth.Issuer, cfg config.BridgeConfig) *Bridge {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	b := &Bridge{
		logger: logger.With(slog.String("component", "event_bridge")),
		issuer: issuer,
		config: cfg,
		jobs:   make(chan job, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

// Close drains the pool. Pending jobs are still delivered.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		close(b.jobs)
	})
	b.wg.Wait()
}

// SendToRoom publishes an event to a room group, authenticated as sender.
// The sender must be a member of the room or the gateway will refuse the
// bridge connection.
func (b *Bridge) SendToRoom(ctx context.Context, senderID, roomID int64, name string, data any) error {
	token, err := b.issuer.Issue(senderID)
	if err != nil {
		return fmt.Errorf("issue bridge token: %w", err)
	}
	url := b.config.Endpoint + "/ws/" + token + "/chats/" + strconv.FormatInt(roomID, 10) + "/"
	return b.publish(ctx, url, senderID, name, data)
}

// SendToGeneral publishes an event to the global group.
func (b *Bridge) SendToGeneral(ctx context.Context, senderID int64, name string, data any) error {
	token, err := b.issuer.Issue(senderID)
	if err != nil {
		return fmt.Errorf("issue bridge token: %w", err)
	}
	return b.publish(ctx, b.config.Endpoint+"/ws/"+token+"/general/", senderID, name, data)
}

// SendToPrivate publishes an event to a user's own private group. The bridge
// connects as that user; private groups cannot be addressed from outside an
// identity.
func (b *Bridge) SendToPrivate(ctx context.Context, userID int64, name string, data any) error {
	token, err := b.issuer.Issue(userID)
	if err != nil {
		return fmt.Errorf("issue bridge token: %w", err)
	}
	return b.publish(ctx, b.config.Endpoint+"/ws/"+token+"/private/", userID, name, data)
}

// publish queues the frame and waits for the worker's verdict, so the call
// completes before the caller's HTTP response is produced.
func (b *Bridge) publish(ctx context.Context, url string, senderID int64, name string, data any) error {
	ev, err := event.New(name, data, senderID)
	if err != nil {
		return err
	}
	payload, err := ev.Encode()
	if err != nil {
		return err
	}

	j := job{url: url, payload: payload, result: make(chan error, 1)}
	select {
	case b.jobs <- j:
	default:
		return ErrQueueFull
	}

	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) worker() {
	defer b.wg.Done()
	for j := range b.jobs {
		j.result <- b.deliver(j)
	}
}

// deliver performs one throwaway client connection: dial, one frame, close.
// No reply is awaited; delivery past this point is the gateway's problem.
func (b *Bridge) deliver(j job) error {
	dialCtx, cancel := context.WithTimeout(context.Background(), b.config.DialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, j.url, nil)
	if err != nil {
		return fmt.Errorf("bridge handshake failed: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := conn.Write(dialCtx, websocket.MessageText, j.payload); err != nil {
		return fmt.Errorf("bridge send failed: %w", err)
	}
	return nil
}
