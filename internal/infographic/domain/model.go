package domain

import "time"

// Phase is the orchestrator state stored under StateKeyPhase.
type Phase string

const (
	PhaseInit        Phase = "init"
	PhasePlanning    Phase = "planning"
	PhaseScriptReady Phase = "script_ready"
	PhaseRendering   Phase = "rendering"
	PhaseCompleted   Phase = "completed"
	PhaseFailed      Phase = "failed"
)

// ProjectStatus represents the lifecycle of a project record
type ProjectStatus string

const (
	ProjectPending     ProjectStatus = "pending"
	ProjectScriptReady ProjectStatus = "script_ready"
	ProjectCompleted   ProjectStatus = "completed"
	ProjectFailed      ProjectStatus = "failed"
)

// SlideStatus tracks a slide through rendering.
type SlideStatus string

const (
	SlideWaiting    SlideStatus = "waiting"
	SlideGenerating SlideStatus = "generating"
	SlideSuccess    SlideStatus = "success"
	SlideError      SlideStatus = "error"
)

// Session state keys.
const (
	StateKeyPhase     = "current_phase"
	StateKeyScript    = "script"
	StateKeyProjectID = "project_id"
	StateKeyQuery     = "query"
)

// Event authors.
const (
	AuthorUser     = "user"
	AuthorPlanner  = "planner"
	AuthorRenderer = "renderer"
)

// Session is the resumable state of one logical conversation for an owner.
type Session struct {
	ID             string         `json:"id"`
	Owner          string         `json:"owner"`
	State          map[string]any `json:"state"`
	Events         []Event        `json:"events"`
	CreatedAt      time.Time      `json:"created_at"`
	LastUpdateTime time.Time      `json:"last_update_time"`
}

// Event is one interaction turn appended to a session.
type Event struct {
	ID        string    `json:"id" firestore:"id"`
	Author    string    `json:"author" firestore:"author"`
	Phase     Phase     `json:"phase,omitempty" firestore:"phase"`
	Text      string    `json:"text" firestore:"text"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp"`
}

// Project is the durable record of one user deliverable.
type Project struct {
	ID        string        `json:"id"`
	Owner     string        `json:"owner"`
	Query     string        `json:"query"`
	Script    *Script       `json:"script,omitempty"`
	Status    ProjectStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Script is the structured slide plan produced by planning.
type Script struct {
	GlobalSettings GlobalSettings `json:"global_settings"`
	Slides         []Slide        `json:"slides"`
}

type GlobalSettings struct {
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Style       string `json:"style,omitempty"`
}

// Slide is one entry of a script. ImagePath is the durable reference;
// ImageURL expires and can be re-minted from ImagePath.
type Slide struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	ImagePrompt string      `json:"image_prompt"`
	ImageURL    string      `json:"image_url,omitempty"`
	ImagePath   string      `json:"image_path,omitempty"`
	Status      SlideStatus `json:"status,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// Asset is the result of storing a blob.
type Asset struct {
	AccessURL  string `json:"access_url"`
	StablePath string `json:"stable_path"`
}

// Clone returns a deep copy so slides can be mutated without aliasing.
func (s *Script) Clone() *Script {
	if s == nil {
		return nil
	}
	out := &Script{GlobalSettings: s.GlobalSettings}
	if s.Slides != nil {
		out.Slides = make([]Slide, len(s.Slides))
		copy(out.Slides, s.Slides)
	}
	return out
}

// SlideIndex returns the position of the slide with the given id, or -1.
func (s *Script) SlideIndex(id string) int {
	for i := range s.Slides {
		if s.Slides[i].ID == id {
			return i
		}
	}
	return -1
}

// AspectRatio returns the configured aspect ratio, defaulting to 16:9.
func (s *Script) AspectRatio() string {
	if s.GlobalSettings.AspectRatio == "" {
		return "16:9"
	}
	return s.GlobalSettings.AspectRatio
}
