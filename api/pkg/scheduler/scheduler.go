// Package scheduler queues and executes session jobs on bounded
// per-kind worker pools: a slow creation pipeline can never starve
// input delivery to sessions that are already running.
package scheduler

import (
	"context"
	"fmt"
	"runtime"

	"github.com/rs/zerolog/log"

	"github.com/conductorhq/conductor/api/pkg/agent"
	"github.com/conductorhq/conductor/api/pkg/config"
	"github.com/conductorhq/conductor/api/pkg/locks"
	"github.com/conductorhq/conductor/api/pkg/names"
	"github.com/conductorhq/conductor/api/pkg/notification"
	"github.com/conductorhq/conductor/api/pkg/pubsub"
	"github.com/conductorhq/conductor/api/pkg/session"
	"github.com/conductorhq/conductor/api/pkg/store"
	"github.com/conductorhq/conductor/api/pkg/system"
	"github.com/conductorhq/conductor/api/pkg/types"
	"github.com/conductorhq/conductor/api/pkg/workspace"
)

// defaultCreateWorkers is the create-pool width on platforms without
// tight pty/file-descriptor limits.
const defaultCreateWorkers = 5

// Deps are the injected collaborators. Everything here is constructed
// explicitly and passed in; the scheduler owns none of it.
type Deps struct {
	Store      store.Store
	PubSub     pubsub.PubSub
	Workspaces *workspace.Manager
	Resolver   *names.Resolver
	Suggester  names.Suggester
	Starter    agent.Starter
	Panels     *agent.PanelRegistry
	Sessions   *session.Service
	Notifier   notification.Notifier
	Locks      *locks.Registry
}

// Scheduler dispatches jobs onto the shared work-queue stream and runs
// the consumer pools. Execution is at-most-once: messages are acked on
// receipt and a failed job is reported, never re-queued.
type Scheduler struct {
	cfg    config.Scheduler
	agents config.Agents
	deps   Deps

	subs []pubsub.Subscription
}

func New(cfg config.Scheduler, agents config.Agents, deps Deps) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		agents: agents,
		deps:   deps,
	}
}

// createPoolWidth is 1 on darwin, where pty and file-descriptor limits
// make parallel workspace+process creation flaky, and 5 elsewhere. An
// explicit config value wins over both.
func (s *Scheduler) createPoolWidth() int {
	if s.cfg.CreateWorkers > 0 {
		return s.cfg.CreateWorkers
	}
	if runtime.GOOS == "darwin" {
		return 1
	}
	return defaultCreateWorkers
}

// Start attaches one bounded consumer pool per job kind.
func (s *Scheduler) Start(ctx context.Context) error {
	pools := []struct {
		kind  JobKind
		width int
	}{
		{JobKindCreate, s.createPoolWidth()},
		{JobKindInput, s.cfg.InputWorkers},
		{JobKindContinue, s.cfg.ContinueWorkers},
	}

	for _, pool := range pools {
		sub, err := s.deps.PubSub.StreamConsume(
			ctx,
			pubsub.JobsStream,
			pubsub.GetJobSubject(string(pool.kind)),
			pool.width,
			s.handleMessage,
		)
		if err != nil {
			s.Stop()
			return fmt.Errorf("failed to start %s consumer: %w", pool.kind, err)
		}
		s.subs = append(s.subs, sub)
		log.Info().Str("kind", string(pool.kind)).Int("workers", pool.width).Msg("started job consumer pool")
	}
	return nil
}

// Stop detaches the consumer pools. In-flight jobs run to completion:
// there is no mid-flight cancellation of a dispatched job.
func (s *Scheduler) Stop() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Msg("failed to unsubscribe job consumer")
		}
	}
	s.subs = nil
}

func (s *Scheduler) handleMessage(msg *pubsub.Message) error {
	// Ack first: at-most-once. A failure is surfaced through job events
	// and the session's failed status, never through redelivery.
	if err := msg.Ack(); err != nil {
		log.Warn().Err(err).Msg("failed to ack job message")
	}

	ctx := context.Background()

	env, err := unmarshalEnvelope(msg.Data)
	if err != nil {
		log.Error().Err(err).Msg("dropping undecodable job")
		return nil
	}

	s.notifyJob(ctx, types.EventJobActive, env.jobID(), nil)

	switch env.Kind {
	case JobKindCreate:
		err = s.processCreate(ctx, env.Create)
	case JobKindInput:
		err = s.processInput(ctx, env.Input)
	case JobKindContinue:
		err = s.processContinue(ctx, env.Continue)
	}

	if err != nil {
		log.Error().Err(err).Str("job_id", env.jobID()).Str("kind", string(env.Kind)).Msg("job failed")
		s.notifyJob(ctx, types.EventJobFailed, env.jobID(), err)
		return nil
	}

	s.notifyJob(ctx, types.EventJobCompleted, env.jobID(), nil)
	return nil
}

// SubmitCreate enqueues a single create-session job.
func (s *Scheduler) SubmitCreate(ctx context.Context, job CreateJob) (*JobHandle, error) {
	job.ID = system.GenerateJobID()
	job.BatchIndex = -1
	if err := s.publish(ctx, &envelope{Kind: JobKindCreate, Create: &job}); err != nil {
		return nil, err
	}
	return &JobHandle{ID: job.ID, Kind: JobKindCreate}, nil
}

// SubmitBatch enqueues count create-session jobs derived from one
// template. For count > 1 a grouping folder is created first and every
// job carries the folder reference plus a distinct index, which the name
// resolver turns into ordered suffixes.
func (s *Scheduler) SubmitBatch(ctx context.Context, template CreateJob, count int) ([]*JobHandle, error) {
	if count < 1 {
		return nil, fmt.Errorf("batch count must be at least 1, got %d", count)
	}
	if count == 1 {
		handle, err := s.SubmitCreate(ctx, template)
		if err != nil {
			return nil, err
		}
		return []*JobHandle{handle}, nil
	}

	folderName := template.DisplayName
	if folderName == "" {
		folderName = names.FallbackDisplayName(template.Prompt)
	}
	folder, err := s.deps.Store.CreateSessionFolder(ctx, &types.SessionFolder{
		Name:      folderName,
		ProjectID: template.ProjectID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session folder: %w", err)
	}
	s.notify(ctx, &types.Event{Type: types.EventFolderCreated, Folder: folder})

	handles := make([]*JobHandle, 0, count)
	for i := 0; i < count; i++ {
		job := template
		job.ID = system.GenerateJobID()
		job.FolderID = folder.ID
		job.BatchIndex = i
		if err := s.publish(ctx, &envelope{Kind: JobKindCreate, Create: &job}); err != nil {
			return handles, err
		}
		handles = append(handles, &JobHandle{ID: job.ID, Kind: JobKindCreate})
	}
	return handles, nil
}

// SubmitInput enqueues input delivery to a session's agent.
func (s *Scheduler) SubmitInput(ctx context.Context, job InputJob) (*JobHandle, error) {
	job.ID = system.GenerateJobID()
	if err := s.publish(ctx, &envelope{Kind: JobKindInput, Input: &job}); err != nil {
		return nil, err
	}
	return &JobHandle{ID: job.ID, Kind: JobKindInput}, nil
}

// SubmitContinue enqueues a follow-up prompt for an existing session.
func (s *Scheduler) SubmitContinue(ctx context.Context, job ContinueJob) (*JobHandle, error) {
	job.ID = system.GenerateJobID()
	if err := s.publish(ctx, &envelope{Kind: JobKindContinue, Continue: &job}); err != nil {
		return nil, err
	}
	return &JobHandle{ID: job.ID, Kind: JobKindContinue}, nil
}

func (s *Scheduler) publish(ctx context.Context, env *envelope) error {
	payload, err := marshalEnvelope(env)
	if err != nil {
		return err
	}
	subject := pubsub.GetJobSubject(string(env.Kind))
	if err := s.deps.PubSub.StreamPublish(ctx, pubsub.JobsStream, subject, payload); err != nil {
		return fmt.Errorf("failed to enqueue %s job: %w", env.Kind, err)
	}
	log.Debug().Str("job_id", env.jobID()).Str("kind", string(env.Kind)).Msg("enqueued job")
	return nil
}

func (s *Scheduler) notify(ctx context.Context, event *types.Event) {
	if s.deps.Notifier == nil {
		return
	}
	if err := s.deps.Notifier.Notify(ctx, event); err != nil {
		log.Warn().Err(err).Str("event", string(event.Type)).Msg("failed to publish event")
	}
}

func (s *Scheduler) notifyJob(ctx context.Context, eventType types.EventType, jobID string, jobErr error) {
	event := &types.Event{Type: eventType, JobID: jobID}
	if jobErr != nil {
		event.Error = jobErr.Error()
	}
	s.notify(ctx, event)
}
