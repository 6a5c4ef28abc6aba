package gateway_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/louieee/chatclone/internal/auth"
	"github.com/louieee/chatclone/internal/event"
	"github.com/louieee/chatclone/internal/gateway"
	"github.com/louieee/chatclone/internal/server/middleware"
	"github.com/louieee/chatclone/internal/store"
	"github.com/louieee/chatclone/pkg/group"
	"github.com/louieee/chatclone/pkg/transport"
)

const testSecret = "gateway-test-secret"

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

type testEnv struct {
	server *httptest.Server
	store  *store.Store
	issuer *auth.Issuer
	broker *group.Broker
}

func (e *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.server.URL, "http")
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := newTestLogger()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	broker := group.NewBroker(logger)
	resolver := auth.NewResolver(st, testSecret)
	ctx, cancel := context.WithCancel(context.Background())

	gw := gateway.New(logger, ctx, broker, resolver, gateway.Config{
		Transport:        transport.ConnectionConfig{ReadTimeout: 30 * time.Second, SendBuffer: 16},
		HandshakeTimeout: 5 * time.Second,
	})

	mux := http.NewServeMux()
	gw.Routes(mux)
	handler := middleware.Chain(mux, middleware.RequestMetadataMiddleware(), middleware.NewRequestLogger(logger))

	ts := httptest.NewServer(handler)
	t.Cleanup(func() {
		cancel()
		ts.Close()
		st.Close()
	})

	return &testEnv{
		server: ts,
		store:  st,
		issuer: auth.NewIssuer(testSecret, time.Hour),
		broker: broker,
	}
}

func (e *testEnv) createUser(t *testing.T, username string) *store.User {
	t.Helper()
	u, err := e.store.CreateUser(context.Background(), &store.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (e *testEnv) createRoom(t *testing.T, name string, memberIDs ...int64) *store.Room {
	t.Helper()
	r, err := e.store.CreateRoom(context.Background(), &store.Room{Name: name, MaximumMembers: 100})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	for _, id := range memberIDs {
		if err := e.store.AddRoomMember(context.Background(), r.ID, id); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}
	return r
}

func (e *testEnv) token(t *testing.T, userID int64) string {
	t.Helper()
	token, err := e.issuer.Issue(userID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

// dial opens a connection and consumes the welcome frame, so the caller knows
// the connection has joined its group.
func (e *testEnv) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, e.wsURL()+path, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	typ, welcome, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	if typ != websocket.MessageText || !strings.Contains(string(welcome), "just connected") {
		t.Fatalf("unexpected welcome frame: %q", welcome)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) event.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var ev event.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode frame %q: %v", data, err)
	}
	return ev
}

func expectNoFrame(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if _, data, err := conn.Read(ctx); err == nil {
		t.Fatalf("unexpected frame received: %q", data)
	}
}

func send(t *testing.T, conn *websocket.Conn, body string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(body)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func TestRoomBroadcastReachesAllMembersIncludingSender(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	room := env.createRoom(t, "room-seven", alice.ID, bob.ID)

	roomPath := "/ws/" + env.token(t, alice.ID) + "/chats/" + itoa(room.ID) + "/"
	aliceConn := env.dial(t, roomPath)
	bobConn := env.dial(t, "/ws/"+env.token(t, bob.ID)+"/chats/"+itoa(room.ID)+"/")

	send(t, aliceConn, `{"text":"hi"}`)

	for name, conn := range map[string]*websocket.Conn{"bob": bobConn, "alice": aliceConn} {
		ev := readEvent(t, conn)
		if ev.Event != event.Message {
			t.Errorf("%s received event %q, want %q", name, ev.Event, event.Message)
		}
		var data map[string]string
		if err := json.Unmarshal(ev.Data, &data); err != nil || data["text"] != "hi" {
			t.Errorf("%s received data %s", name, ev.Data)
		}
	}
}

func TestRoomIsolation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	carol := env.createUser(t, "carol")
	roomA := env.createRoom(t, "alpha", alice.ID)
	roomB := env.createRoom(t, "beta", carol.ID)

	aliceConn := env.dial(t, "/ws/"+env.token(t, alice.ID)+"/chats/"+itoa(roomA.ID)+"/")
	carolConn := env.dial(t, "/ws/"+env.token(t, carol.ID)+"/chats/"+itoa(roomB.ID)+"/")

	send(t, aliceConn, `{"text":"private to alpha"}`)
	readEvent(t, aliceConn) // sender's own echo
	expectNoFrame(t, carolConn)
}

func TestInvalidTokenRefused(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	room := env.createRoom(t, "den", alice.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, env.wsURL()+"/ws/garbage-token/chats/"+itoa(room.ID)+"/", nil)
	if err == nil {
		t.Fatal("expected dial to fail for invalid token")
	}
	if resp != nil && resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestNonMemberRefusedIdenticallyToUnknownRoom(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	outsider := env.createUser(t, "mallory")
	room := env.createRoom(t, "den", alice.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// Not a member of an existing room.
	_, resp1, err := websocket.Dial(ctx, env.wsURL()+"/ws/"+env.token(t, outsider.ID)+"/chats/"+itoa(room.ID)+"/", nil)
	if err == nil {
		t.Fatal("expected dial to fail for non-member")
	}
	// Room that does not exist.
	_, resp2, err := websocket.Dial(ctx, env.wsURL()+"/ws/"+env.token(t, outsider.ID)+"/chats/424242/", nil)
	if err == nil {
		t.Fatal("expected dial to fail for unknown room")
	}
	// Both cases collapse to the same observable outcome.
	if resp1 == nil || resp2 == nil || resp1.StatusCode != resp2.StatusCode {
		t.Errorf("refusals differ: %+v vs %+v", resp1, resp2)
	}

	if env.broker.Size(group.Room(room.ID)) != 0 {
		t.Error("refused connection joined the group")
	}
}

func TestGeneralChannelFanOut(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	aliceConn := env.dial(t, "/ws/"+env.token(t, alice.ID)+"/general/")
	bobConn := env.dial(t, "/ws/"+env.token(t, bob.ID)+"/general/")

	send(t, aliceConn, `{"event":"NEW USER","data":{"id":9},"sender":1}`)

	ev := readEvent(t, bobConn)
	if ev.Event != event.NewUser || ev.Sender != 1 {
		t.Errorf("bob received %+v", ev)
	}
}

func TestPrivateChannelIsPerUser(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	alicePrivate := env.dial(t, "/ws/"+env.token(t, alice.ID)+"/private/")
	bobPrivate := env.dial(t, "/ws/"+env.token(t, bob.ID)+"/private/")

	// A second connection by alice publishes into her own private group.
	aliceSecond := env.dial(t, "/ws/"+env.token(t, alice.ID)+"/private/")
	send(t, aliceSecond, `{"text":"note to self"}`)

	readEvent(t, alicePrivate)
	expectNoFrame(t, bobPrivate)
}

func TestMalformedFrameIsDroppedConnectionStaysOpen(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")

	conn := env.dial(t, "/ws/"+env.token(t, alice.ID)+"/general/")

	send(t, conn, `{"broken":`)
	expectNoFrame(t, conn)

	// The connection survived and still relays.
	send(t, conn, `{"text":"still here"}`)
	ev := readEvent(t, conn)
	if ev.Event != event.Message {
		t.Errorf("event after malformed frame = %q", ev.Event)
	}
}

func TestDisconnectLeavesGroup(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	room := env.createRoom(t, "den", alice.ID, bob.ID)
	key := group.Room(room.ID)

	aliceConn := env.dial(t, "/ws/"+env.token(t, alice.ID)+"/chats/"+itoa(room.ID)+"/")
	bobConn := env.dial(t, "/ws/"+env.token(t, bob.ID)+"/chats/"+itoa(room.ID)+"/")

	if env.broker.Size(key) != 2 {
		t.Fatalf("group size = %d, want 2", env.broker.Size(key))
	}

	bobConn.Close(websocket.StatusNormalClosure, "")
	waitFor(t, func() bool { return env.broker.Size(key) == 1 })

	// A publish after the disconnect reaches only the remaining member.
	send(t, aliceConn, `{"text":"anyone there"}`)
	readEvent(t, aliceConn)
}

// waitFor polls until the condition holds; connection teardown is
// asynchronous with respect to the client-side close.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
