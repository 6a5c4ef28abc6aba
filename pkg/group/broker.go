// Package group implements the process-wide publish/subscribe registry that
// backs the gateway's broadcast addresses. A group is purely the set of
// currently-joined members: it is created on first join, vanishes when its
// last member leaves, and nothing published to it is buffered or replayed.
package group

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// Member is a handle that can receive group broadcasts. Send must not block;
// the transport layer queues and drops rather than stalling the publisher.
type Member interface {
	ID() uuid.UUID
	Send(message []byte)
}

// Room, Global and Private name the three broadcast addresses.
const Global = "global"

func Room(roomID int64) string {
	return "room:" + formatID(roomID)
}

func Private(userID int64) string {
	return "private:" + formatID(userID)
}

// Broker maps group keys to their live member sets. Join, Leave and Publish
// may be called concurrently from any number of connection handlers and
// bridge tasks. Publish runs under the registry lock so it sees a consistent
// membership snapshot and so delivery order within one group equals publish
// order.
type Broker struct {
	mu     sync.Mutex
	groups map[string]map[uuid.UUID]Member
	logger *slog.Logger
}

func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{
		groups: make(map[string]map[uuid.UUID]Member),
		logger: logger.With(slog.String("component", "group_broker")),
	}
}

// Join adds a member to a group, creating the group if needed. Joining a
// group the member already belongs to is a no-op.
func (b *Broker) Join(key string, member Member) {
	b.mu.Lock()
	defer b.mu.Unlock()

	members, ok := b.groups[key]
	if !ok {
		members = make(map[uuid.UUID]Member)
		b.groups[key] = members
	}
	members[member.ID()] = member
	b.logger.Debug("member joined group", slog.String("group", key), slog.String("memberID", member.ID().String()))
}

// Leave removes a member from a group. Idempotent: leaving a group the member
// never joined, or a group that no longer exists, is a no-op.
func (b *Broker) Leave(key string, memberID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	members, ok := b.groups[key]
	if !ok {
		return
	}
	if _, present := members[memberID]; !present {
		return
	}
	delete(members, memberID)
	b.logger.Debug("member left group", slog.String("group", key), slog.String("memberID", memberID.String()))
	if len(members) == 0 {
		delete(b.groups, key)
		b.logger.Debug("removed empty group", slog.String("group", key))
	}
}

// Publish fans a payload out to every member joined to the group at this
// moment and reports how many members were addressed. Members joining after
// the call receive nothing. Sends are queued per member; a stalled member
// cannot delay the others.
func (b *Broker) Publish(key string, payload []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	members := b.groups[key]
	for _, m := range members {
		m.Send(payload)
	}
	return len(members)
}

// Size reports the current membership count of a group.
func (b *Broker) Size(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.groups[key])
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
