package scheduler

import (
	"encoding/json"
	"fmt"

	"github.com/conductorhq/conductor/api/pkg/types"
)

// JobKind selects the queue (and worker pool) a job runs on.
type JobKind string

const (
	JobKindCreate   JobKind = "create"
	JobKindInput    JobKind = "input"
	JobKindContinue JobKind = "continue"
)

// CreateJob asks for a new session: workspace, session row, optional
// setup step, optional agent start. Ephemeral: it exists only while
// queued/processing and yields a session id on success.
type CreateJob struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Prompt    string `json:"prompt"`
	// DisplayName, when empty, is derived from the prompt.
	DisplayName string `json:"display_name,omitempty"`
	BaseBranch  string `json:"base_branch,omitempty"`
	// FolderID groups batch-created sessions; empty for singles.
	FolderID string `json:"folder_id,omitempty"`
	// BatchIndex is the 0-based position within a batch, -1 for singles.
	BatchIndex int `json:"batch_index"`

	Tool       types.AgentTool  `json:"tool,omitempty"`
	CommitMode types.CommitMode `json:"commit_mode,omitempty"`
	AutoCommit bool             `json:"auto_commit,omitempty"`
}

// InputJob delivers user input to a running session's agent.
type InputJob struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Input     string `json:"input"`
}

// ContinueJob sends a follow-up prompt to an existing session.
type ContinueJob struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
}

// envelope is the wire form of a queued job: a tag plus exactly one
// payload, dispatched by kind rather than by structural guessing.
type envelope struct {
	Kind     JobKind      `json:"kind"`
	Create   *CreateJob   `json:"create,omitempty"`
	Input    *InputJob    `json:"input,omitempty"`
	Continue *ContinueJob `json:"continue,omitempty"`
}

func (e *envelope) jobID() string {
	switch e.Kind {
	case JobKindCreate:
		return e.Create.ID
	case JobKindInput:
		return e.Input.ID
	case JobKindContinue:
		return e.Continue.ID
	}
	return ""
}

func (e *envelope) validate() error {
	switch e.Kind {
	case JobKindCreate:
		if e.Create == nil {
			return fmt.Errorf("create job envelope missing payload")
		}
	case JobKindInput:
		if e.Input == nil {
			return fmt.Errorf("input job envelope missing payload")
		}
	case JobKindContinue:
		if e.Continue == nil {
			return fmt.Errorf("continue job envelope missing payload")
		}
	default:
		return fmt.Errorf("unknown job kind %q", e.Kind)
	}
	return nil
}

func marshalEnvelope(e *envelope) ([]byte, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s job: %w", e.Kind, err)
	}
	return payload, nil
}

func unmarshalEnvelope(payload []byte) (*envelope, error) {
	var e envelope
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if err := e.validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// JobHandle is what a caller gets back from submission: enough to
// correlate the job lifecycle events that follow.
type JobHandle struct {
	ID   string  `json:"id"`
	Kind JobKind `json:"kind"`
}
