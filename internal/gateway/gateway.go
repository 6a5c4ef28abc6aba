// Package gateway implements the three WebSocket namespaces: room-scoped
// connections, the general channel, and per-user private channels. Each
// connection is authenticated from its path token before the upgrade, joins
// exactly one group, relays its inbound frames to that group, and is removed
// from the group unconditionally on close.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/louieee/chatclone/internal/auth"
	"github.com/louieee/chatclone/internal/event"
	"github.com/louieee/chatclone/internal/server/middleware"
	"github.com/louieee/chatclone/pkg/group"
	"github.com/louieee/chatclone/pkg/transport"
)

type Config struct {
	Transport        transport.ConnectionConfig
	HandshakeTimeout time.Duration
}

type Gateway struct {
	logger   *slog.Logger
	broker   *group.Broker
	resolver *auth.Resolver
	registry *sessionRegistry
	config   Config

	wg  sync.WaitGroup
	ctx context.Context
}

func New(logger *slog.Logger, ctx context.Context, broker *group.Broker, resolver *auth.Resolver, config Config) *Gateway {
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 5 * time.Second
	}
	return &Gateway{
		logger:   logger.With(slog.String("component", "gateway")),
		broker:   broker,
		resolver: resolver,
		registry: newSessionRegistry(),
		config:   config,
		ctx:      ctx,
	}
}

// Routes registers the three namespace endpoints on the mux. Token and room
// id are part of the connection address, not a handshake payload.
func (g *Gateway) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/{token}/chats/{roomID}/{$}", g.handleRoom)
	mux.HandleFunc("GET /ws/{token}/general/{$}", g.handleGeneral)
	mux.HandleFunc("GET /ws/{token}/private/{$}", g.handlePrivate)
}

// ConnectionCounter and ConnectionCycler plug the session registry into the
// connection limiter middleware.
func (g *Gateway) ConnectionCounter() middleware.ConnectionCounter {
	return func(ip string) (int, error) {
		return g.registry.countByIP(ip), nil
	}
}

func (g *Gateway) ConnectionCycler() middleware.ConnectionCycler {
	return func(ip string) {
		if oldest, found := g.registry.oldestByIP(ip); found {
			g.logger.Info("Cycling connection: closing oldest", slog.String("ip", ip), slog.String("connID", oldest.ID().String()))
			oldest.Close(errors.New("connection cycled by new connection"))
		}
	}
}

func (g *Gateway) handleRoom(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	roomID, err := strconv.ParseInt(r.PathValue("roomID"), 10, 64)
	if err != nil {
		g.refuse(w, r, fmt.Errorf("bad room id %q", r.PathValue("roomID")))
		return
	}

	resolveCtx, cancel := context.WithTimeout(r.Context(), g.config.HandshakeTimeout)
	defer cancel()
	principal, room, err := g.resolver.ResolveRoomMembership(resolveCtx, token, roomID)
	if err != nil {
		g.refuse(w, r, err)
		return
	}

	welcome := fmt.Sprintf("%s just connected to %s", principal.Username, room.Name)
	g.serve(w, r, principal, group.Room(room.ID), welcome)
}

func (g *Gateway) handleGeneral(w http.ResponseWriter, r *http.Request) {
	resolveCtx, cancel := context.WithTimeout(r.Context(), g.config.HandshakeTimeout)
	defer cancel()
	principal, err := g.resolver.ResolveToken(resolveCtx, r.PathValue("token"))
	if err != nil {
		g.refuse(w, r, err)
		return
	}

	welcome := fmt.Sprintf("%s just connected to general channel", principal.Username)
	g.serve(w, r, principal, group.Global, welcome)
}

func (g *Gateway) handlePrivate(w http.ResponseWriter, r *http.Request) {
	resolveCtx, cancel := context.WithTimeout(r.Context(), g.config.HandshakeTimeout)
	defer cancel()
	principal, err := g.resolver.ResolveToken(resolveCtx, r.PathValue("token"))
	if err != nil {
		g.refuse(w, r, err)
		return
	}

	// A principal always joins its own private group, never another's.
	welcome := fmt.Sprintf("%s just connected to private channel", principal.Username)
	g.serve(w, r, principal, group.Private(principal.ID), welcome)
}

// refuse rejects the connection attempt before the upgrade. The peer sees a
// bare 401 with no machine-readable reason; the cause is only logged.
func (g *Gateway) refuse(w http.ResponseWriter, r *http.Request, err error) {
	ip := ""
	if meta, ok := middleware.ReqMetadataFrom(r.Context()); ok {
		ip = meta.IP
	}
	g.logger.Warn("Authentication refused",
		slog.String("path", r.URL.Path),
		slog.String("ip", ip),
		slog.Any("error", err),
	)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// serve upgrades the connection, joins it to its group, and relays frames
// until the peer goes away.
func (g *Gateway) serve(w http.ResponseWriter, r *http.Request, principal *auth.Principal, groupKey, welcome string) {
	ip := ""
	if meta, ok := middleware.ReqMetadataFrom(r.Context()); ok {
		ip = meta.IP
	}
	connLogger := g.logger.With(
		slog.String("remoteAddr", ip),
		slog.Int64("userID", principal.ID),
		slog.String("group", groupKey),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		connLogger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	onMessage := func(ctx context.Context, connID uuid.UUID, msg []byte) {
		ev, err := event.FromFrame(msg)
		if err != nil {
			// Malformed frame: drop it, keep the connection open.
			connLogger.Warn("Dropping malformed frame", slog.Any("error", err))
			return
		}
		payload, err := ev.Encode()
		if err != nil {
			connLogger.Error("Failed to re-encode event", slog.Any("error", err))
			return
		}
		n := g.broker.Publish(groupKey, payload)
		connLogger.Debug("Published event to group", slog.String("event", ev.Event), slog.Int("members", n))
	}
	onClose := func(connID uuid.UUID, err error) {
		// Leave must run on every termination path, normal or not.
		g.broker.Leave(groupKey, connID)
		g.registry.remove(connID)
		connLogger.Info("Connection closed, left group", slog.Any("reason", err))
	}

	// Handlers are bound before the connection becomes reachable through the
	// registry, so a concurrent Close (cycling, shutdown) always runs the
	// group leave.
	conn := transport.NewConnection(g.ctx, &g.wg, wsConn, g.config.Transport, onMessage, onClose, g.logger)
	g.registry.add(&session{
		conn:        conn,
		ip:          ip,
		principalID: principal.ID,
		createdAt:   time.Now(),
	})
	g.broker.Join(groupKey, conn)

	conn.Send([]byte(welcome))
	connLogger.Info("User connection fully established")
	conn.Run()
	<-conn.Done()

	// A close that raced the add/join above has already run the close
	// handler; both calls are idempotent, so settle the membership once the
	// connection is fully down.
	g.broker.Leave(groupKey, conn.ID())
	g.registry.remove(conn.ID())
}

// Shutdown closes every live connection and waits for their teardown.
func (g *Gateway) Shutdown() {
	for _, conn := range g.registry.all() {
		conn.Close(errors.New("graceful shutdown"))
	}
	g.wg.Wait()
}
