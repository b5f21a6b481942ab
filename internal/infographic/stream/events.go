package stream

import (
	"encoding/json"

	"github.com/mauripsale/infographic-agent-pro/internal/infographic/domain"
)

// Event is one line of the progress stream. The set of events is closed.
type Event interface {
	json.Marshaler
	event()
}

// SurfaceInit opens the stream. It is always the first event.
type SurfaceInit struct {
	SurfaceID string       `json:"surfaceId"`
	Phase     domain.Phase `json:"phase"`
	ProjectID string       `json:"project_id,omitempty"`
	SessionID string       `json:"session_id,omitempty"`
}

// ComponentUpdate reports a per-slide transition.
type ComponentUpdate struct {
	Target  string         `json:"target"`
	Payload ComponentState `json:"payload"`
}

type ComponentState struct {
	Status   domain.SlideStatus `json:"status"`
	ImageURL string             `json:"image_url,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// DataModelUpdate carries the current script and project id.
type DataModelUpdate struct {
	Value DataModel `json:"value"`
}

type DataModel struct {
	Script    *domain.Script `json:"script,omitempty"`
	ProjectID string         `json:"project_id"`
}

// Log is a human readable progress line. Category is set on failures.
type Log struct {
	Message  string
	Category domain.Category
}

func (SurfaceInit) event()     {}
func (ComponentUpdate) event() {}
func (DataModelUpdate) event() {}
func (Log) event()             {}

func (e SurfaceInit) MarshalJSON() ([]byte, error) {
	type body SurfaceInit
	return json.Marshal(map[string]body{"createSurface": body(e)})
}

func (e ComponentUpdate) MarshalJSON() ([]byte, error) {
	type body ComponentUpdate
	return json.Marshal(map[string]body{"updateComponents": body(e)})
}

func (e DataModelUpdate) MarshalJSON() ([]byte, error) {
	type body DataModelUpdate
	return json.Marshal(map[string]body{"updateDataModel": body(e)})
}

func (e Log) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Log      string          `json:"log"`
		Category domain.Category `json:"category,omitempty"`
	}{e.Message, e.Category})
}
