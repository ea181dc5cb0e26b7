package types

// EventType identifies a UI notification event.
type EventType string

const (
	EventSessionCreated EventType = "session_created"
	EventSessionUpdated EventType = "session_updated"
	EventSessionDeleted EventType = "session_deleted"
	EventFolderCreated  EventType = "folder_created"

	EventJobActive    EventType = "job_active"
	EventJobCompleted EventType = "job_completed"
	EventJobFailed    EventType = "job_failed"
)

// Event is the payload emitted to the notification sink. Exactly one of
// Session/Folder is set for session/folder events; JobID is set for job
// lifecycle events.
type Event struct {
	Type    EventType      `json:"type"`
	Session *Session       `json:"session,omitempty"`
	Folder  *SessionFolder `json:"folder,omitempty"`
	JobID   string         `json:"job_id,omitempty"`
	Error   string         `json:"error,omitempty"`
}
