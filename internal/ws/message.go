package ws

import "github.com/eventchat/internal/notify"

type FrameType string

const (
	FrameSubscribe   FrameType = "subscribe"
	FrameUnsubscribe FrameType = "unsubscribe"
	FrameSnapshot    FrameType = "snapshot"
	FrameCompleted   FrameType = "completed"
	FrameError       FrameType = "error"
)

// View names the stream a client subscribes to; the values match notify kinds.
type View = notify.Kind

// IncomingFrame is what the client sends to the server.
type IncomingFrame struct {
	Type   FrameType `json:"type"`
	View   View      `json:"view"`
	RoomID string    `json:"room_id,omitempty"`
}

// OutgoingFrame is what the server sends to the client. Payload is the snapshot:
// []model.ChatMessage, model.ChatMessage, []model.ChatRoom, []string or int depending on View.
type OutgoingFrame struct {
	Type    FrameType `json:"type"`
	View    View      `json:"view,omitempty"`
	RoomID  string    `json:"room_id,omitempty"`
	Payload any       `json:"payload,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// subKey identifies one subscription of a client.
type subKey struct {
	view   View
	roomID string
}
