package socket

import (
	"encoding/json"
	"fmt"

	"mocksync/internal/document/model"
)

const (
	WelcomeType      = "welcome"      // Relay assigned the connection id
	JoinProjectType  = "joinProject"  // Client wants a project's room
	TabsSnapshotType = "tabsSnapshot" // Tab list changed (add/remove/rename)
	EditorUpdateType = "editorUpdate" // Full content of one tab
	CursorMoveType   = "cursorMove"   // Pointer moved over a tab
	CursorLeaveType  = "cursorLeave"  // Pointer left, or its owner went away
)

// Envelope is the frame exchanged on the socket. SenderID and ProjectID are
// stamped by the relay; clients cannot choose them.
type Envelope struct {
	Type      string          `json:"type"`
	ProjectID string          `json:"projectId,omitempty"`
	SenderID  string          `json:"senderId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type Welcome struct {
	ConnectionID string `json:"connectionId"`
}

type JoinProject struct {
	ProjectID string `json:"projectId"`
}

type TabsSnapshot struct {
	Tabs []model.TabMeta `json:"tabs"`
}

type EditorUpdate struct {
	TabID  string `json:"tabId"`
	Markup string `json:"markup"`
	Style  string `json:"style"`
}

type CursorMove struct {
	TabID string  `json:"tabId"`
	Name  string  `json:"name"`
	RX    float64 `json:"rx"`
	RY    float64 `json:"ry"`
}

type CursorLeave struct{}

// NewEnvelope marshals payload into an envelope of the given type.
func NewEnvelope(kind, projectID, senderID string, payload any) (Envelope, error) {
	env := Envelope{Type: kind, ProjectID: projectID, SenderID: senderID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", kind, err)
		}
		env.Payload = raw
	}
	return env, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s: %w", e.Type, err)
	}
	return nil
}
