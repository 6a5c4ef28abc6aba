package event

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Names of the events emitted by the write tier. Client-originated frames
// without an explicit event name are wrapped as a plain Message.
const (
	Message          = "MESSAGE"
	NewUser          = "NEW USER"
	LoggedIn         = "LOGGED IN"
	NewChatRoom      = "NEW CHATROOM"
	UpdateChatRoom   = "UPDATE CHATROOM"
	NewMember        = "NEW MEMBER"
	MemberExit       = "MEMBER EXIT"
	NewMessage       = "NEW MESSAGE"
	NewMessageViewer = "NEW MESSAGE VIEWER"
)

// Event is the envelope broadcast to every member of a group. Sender carries
// the originating user's id; receivers that want to suppress their own echoes
// compare it against their identity.
type Event struct {
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
	Sender int64           `json:"sender,omitempty"`
}

// New builds an envelope with an already-marshaled payload.
func New(name string, data any, sender int64) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshal event data: %w", err)
	}
	return Event{Event: name, Data: raw, Sender: sender}, nil
}

// Encode serializes the envelope for the wire.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// FromFrame rebuilds an envelope from an inbound client frame. A frame that is
// a JSON object carrying an "event" key is decoded as an envelope; any other
// valid JSON value is wrapped whole as the data of a plain Message event.
// Malformed frames are rejected.
func FromFrame(frame []byte) (Event, error) {
	if !gjson.ValidBytes(frame) {
		return Event{}, fmt.Errorf("frame is not valid JSON")
	}
	if gjson.GetBytes(frame, "event").Exists() {
		var ev Event
		if err := json.Unmarshal(frame, &ev); err != nil {
			return Event{}, fmt.Errorf("decode event envelope: %w", err)
		}
		return ev, nil
	}
	return Event{Event: Message, Data: json.RawMessage(frame)}, nil
}
