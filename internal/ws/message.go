package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"notifyd/internal/model"
)

type MessageType string

const (
	TypeNotification   MessageType = "notification"
	TypeTaskUpdate     MessageType = "task_update"
	TypeDocumentUpdate MessageType = "document_update"
	TypeChangeUpdate   MessageType = "change_update"
	TypeComment        MessageType = "comment"
	TypeMention        MessageType = "mention"
	TypePing           MessageType = "ping"
	TypePong           MessageType = "pong"
	TypeHeartbeat      MessageType = "heartbeat"
	TypeSystem         MessageType = "system"
	TypeError          MessageType = "error"
)

var (
	ErrMalformedFrame = errors.New("ws: malformed frame")
	ErrUnknownType    = errors.New("ws: unknown message type")
)

// Envelope is the wire shape of every frame. Servers put the payload under
// either data or content.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

func (e Envelope) body() json.RawMessage {
	if len(e.Data) > 0 {
		return e.Data
	}
	return e.Content
}

// Payload is the closed set of decoded frame bodies.
type Payload interface {
	messageType() MessageType
}

type NotificationPayload struct {
	Notification model.Notification
}

type TaskUpdatePayload struct {
	TaskID    string `json:"taskId"`
	ProjectID string `json:"projectId,omitempty"`
	Title     string `json:"title,omitempty"`
	Status    string `json:"status,omitempty"`
	UpdatedBy string `json:"updatedBy,omitempty"`
}

type DocumentUpdatePayload struct {
	DocumentID string `json:"documentId"`
	Title      string `json:"title,omitempty"`
	Version    int    `json:"version,omitempty"`
	UpdatedBy  string `json:"updatedBy,omitempty"`
}

type ChangeUpdatePayload struct {
	ChangeID string `json:"changeId"`
	Title    string `json:"title,omitempty"`
	Status   string `json:"status,omitempty"`
}

type CommentPayload struct {
	CommentID  string `json:"commentId"`
	TargetType string `json:"targetType,omitempty"`
	TargetID   string `json:"targetId,omitempty"`
	Author     string `json:"author,omitempty"`
	Content    string `json:"content,omitempty"`
}

type MentionPayload struct {
	SourceType string `json:"sourceType,omitempty"`
	SourceID   string `json:"sourceId,omitempty"`
	Author     string `json:"author,omitempty"`
	Excerpt    string `json:"excerpt,omitempty"`
}

type SystemPayload struct {
	Level   string `json:"level,omitempty"`
	Message string `json:"message"`
}

type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// HeartbeatPayload covers ping, pong and heartbeat frames.
type HeartbeatPayload struct {
	Kind      MessageType `json:"-"`
	Timestamp int64       `json:"timestamp,omitempty"`
}

func (NotificationPayload) messageType() MessageType   { return TypeNotification }
func (TaskUpdatePayload) messageType() MessageType     { return TypeTaskUpdate }
func (DocumentUpdatePayload) messageType() MessageType { return TypeDocumentUpdate }
func (ChangeUpdatePayload) messageType() MessageType   { return TypeChangeUpdate }
func (CommentPayload) messageType() MessageType        { return TypeComment }
func (MentionPayload) messageType() MessageType        { return TypeMention }
func (SystemPayload) messageType() MessageType         { return TypeSystem }
func (ErrorPayload) messageType() MessageType          { return TypeError }
func (p HeartbeatPayload) messageType() MessageType    { return p.Kind }

// Message is a decoded inbound frame.
type Message struct {
	Type    MessageType
	Payload Payload
	Raw     json.RawMessage
}

type decodeFunc func(body json.RawMessage) (Payload, error)

func decodeInto[P Payload](body json.RawMessage) (Payload, error) {
	var p P
	if len(body) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	return p, nil
}

func heartbeat(kind MessageType) decodeFunc {
	return func(body json.RawMessage) (Payload, error) {
		p := HeartbeatPayload{Kind: kind}
		if len(body) > 0 {
			// Heartbeat bodies are informational; ignore odd shapes.
			_ = json.Unmarshal(body, &p)
		}
		return p, nil
	}
}

var decoders = map[MessageType]decodeFunc{
	TypeNotification: func(body json.RawMessage) (Payload, error) {
		var n model.Notification
		if err := json.Unmarshal(body, &n); err != nil {
			return nil, err
		}
		return NotificationPayload{Notification: n}, nil
	},
	TypeTaskUpdate:     decodeInto[TaskUpdatePayload],
	TypeDocumentUpdate: decodeInto[DocumentUpdatePayload],
	TypeChangeUpdate:   decodeInto[ChangeUpdatePayload],
	TypeComment:        decodeInto[CommentPayload],
	TypeMention:        decodeInto[MentionPayload],
	TypeSystem:         decodeInto[SystemPayload],
	TypeError:          decodeInto[ErrorPayload],
	TypePing:           heartbeat(TypePing),
	TypePong:           heartbeat(TypePong),
	TypeHeartbeat:      heartbeat(TypeHeartbeat),
}

// Decode parses one frame. Unknown types return the message with a nil
// payload and ErrUnknownType.
func Decode(frame []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	msg := Message{Type: env.Type, Raw: env.body()}

	decode, ok := decoders[env.Type]
	if !ok {
		return msg, ErrUnknownType
	}
	payload, err := decode(msg.Raw)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %s payload: %v", ErrMalformedFrame, env.Type, err)
	}
	msg.Payload = payload
	return msg, nil
}

// Outbound is a frame sent to the server.
type Outbound struct {
	Type      MessageType `json:"type"`
	Data      any         `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`
}
