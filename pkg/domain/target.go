package domain

import (
	"maps"
	"time"
)

// Target is a discovered JVM. JvmId is its stable identity across
// reconnects; ConnectUrl is the Jolokia endpoint it is reached through.
type Target struct {
	JvmId      string            `json:"jvmId"`
	ConnectUrl string            `json:"connectUrl"`
	Alias      string            `json:"alias"`
	Labels     map[string]string `json:"labels"`

	// Annotations grouped by their origin: "platform" ones come from the
	// discovery mechanism, "cryostat" ones are set by this service.
	PlatformAnnotations map[string]string `json:"platformAnnotations"`
	CryostatAnnotations map[string]string `json:"cryostatAnnotations"`
}

// SameAttributes reports whether both targets look the same to a match
// expression.
func (t Target) SameAttributes(other Target) bool {
	return t.JvmId == other.JvmId &&
		t.ConnectUrl == other.ConnectUrl &&
		t.Alias == other.Alias &&
		maps.Equal(t.Labels, other.Labels) &&
		maps.Equal(t.PlatformAnnotations, other.PlatformAnnotations) &&
		maps.Equal(t.CryostatAnnotations, other.CryostatAnnotations)
}

type recordingState string

const (
	RecordingStateNew     recordingState = "NEW"
	RecordingStateDelayed recordingState = "DELAYED"
	RecordingStateRunning recordingState = "RUNNING"
	RecordingStateStopped recordingState = "STOPPED"
	RecordingStateClosed  recordingState = "CLOSED"
	RecordingStateUnknown recordingState = "UNKNOWN"
)

func ParseRecordingState(s string) recordingState {
	switch state := recordingState(s); state {
	case RecordingStateNew, RecordingStateDelayed, RecordingStateRunning, RecordingStateStopped, RecordingStateClosed:
		return state
	}
	return RecordingStateUnknown
}

// Recording is a JFR recording living in a target JVM.
type Recording struct {
	Id      int64             `json:"id"`
	Name    string            `json:"name"`
	State   recordingState    `json:"state"`
	MaxAge  time.Duration     `json:"maxAge"`
	MaxSize int64             `json:"maxSize"`
	Labels  map[string]string `json:"labels"`
}

func (r Recording) IsActive() bool {
	return r.State == RecordingStateRunning || r.State == RecordingStateDelayed || r.State == RecordingStateNew
}

type TemplateType string

const (
	TemplateTypeTarget TemplateType = "TARGET"
	TemplateTypeCustom TemplateType = "CUSTOM"
)

// ParseTemplateType returns the template type by its name; an empty name means
// "any type".
func ParseTemplateType(s string) (TemplateType, bool) {
	switch TemplateType(s) {
	case TemplateTypeTarget, TemplateTypeCustom, "":
		return TemplateType(s), true
	}
	return "", false
}

// Template is an event template a recording is configured with. TARGET
// templates are referenced by their name inside the JVM, CUSTOM ones are
// uploaded as .jfc XML held in Contents.
type Template struct {
	Name        string       `json:"name"`
	Label       string       `json:"label"`
	Description string       `json:"description"`
	Type        TemplateType `json:"type"`
	Contents    string       `json:"-"`
}

type RecordingOptions struct {
	Name    string
	MaxAge  time.Duration
	MaxSize int64
	ToDisk  bool
}

// ReplacePolicy controls what happens when a recording with the same name
// already exists on the target.
type ReplacePolicy int

const (
	ReplaceNever ReplacePolicy = iota
	ReplaceStopped
	ReplaceAlways
)

// ArchivedRecording is an object in archive storage.
type ArchivedRecording struct {
	Key          string
	JvmId        string
	Filename     string
	LastModified time.Time
	Size         int64
}
