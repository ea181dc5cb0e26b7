package scheduler

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/conductorhq/conductor/api/pkg/agent"
	"github.com/conductorhq/conductor/api/pkg/config"
	"github.com/conductorhq/conductor/api/pkg/locks"
	"github.com/conductorhq/conductor/api/pkg/names"
	"github.com/conductorhq/conductor/api/pkg/pubsub"
	"github.com/conductorhq/conductor/api/pkg/session"
	"github.com/conductorhq/conductor/api/pkg/store"
	"github.com/conductorhq/conductor/api/pkg/types"
	"github.com/conductorhq/conductor/api/pkg/workspace"
)

const waitFor = 10 * time.Second
const tick = 20 * time.Millisecond

type startCall struct {
	target agent.Target
	req    agent.StartRequest
}

type fakeStarter struct {
	mu        sync.Mutex
	starts    []startCall
	continues []agent.Target
	inputs    []string
	err       error
}

func (f *fakeStarter) Start(_ context.Context, target agent.Target, req agent.StartRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.starts = append(f.starts, startCall{target: target, req: req})
	return nil
}

func (f *fakeStarter) Continue(_ context.Context, target agent.Target, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.continues = append(f.continues, target)
	return nil
}

func (f *fakeStarter) SendInput(_ context.Context, _ agent.Target, input string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.inputs = append(f.inputs, input)
	return nil
}

func (f *fakeStarter) startCalls() []startCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]startCall{}, f.starts...)
}

func (f *fakeStarter) inputCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.inputs...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []*types.Event
}

func (n *recordingNotifier) Notify(_ context.Context, event *types.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) byType(t types.EventType) []*types.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*types.Event
	for _, e := range n.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type SchedulerTestSuite struct {
	suite.Suite
	ctx        context.Context
	db         *store.SQLStore
	workspaces *workspace.Manager
	starter    *fakeStarter
	notifier   *recordingNotifier
	panels     *agent.PanelRegistry
	scheduler  *Scheduler
	project    *types.Project
}

func TestSchedulerTestSuite(t *testing.T) {
	suite.Run(t, new(SchedulerTestSuite))
}

func (suite *SchedulerTestSuite) SetupTest() {
	suite.ctx = context.Background()

	db, err := store.NewSQLStore(config.Store{
		Provider:    "sqlite",
		SQLitePath:  ":memory:",
		AutoMigrate: true,
		IdleConns:   1,
		MaxConns:    1,
	})
	suite.Require().NoError(err)
	suite.db = db

	wsCfg := config.Workspaces{Folder: "worktrees"}
	registry := locks.NewRegistry()
	suite.workspaces = workspace.NewManager(wsCfg, registry)
	suite.starter = &fakeStarter{}
	suite.notifier = &recordingNotifier{}
	suite.panels = agent.NewPanelRegistry()

	sessions := session.NewService(wsCfg, db, suite.workspaces, suite.notifier, registry)

	suite.scheduler = New(
		config.Scheduler{CreateWorkers: 2, InputWorkers: 2, ContinueWorkers: 2},
		config.Agents{PanelWaitAttempts: 50, PanelWaitInterval: 10 * time.Millisecond},
		Deps{
			Store:      db,
			PubSub:     pubsub.NewInMemory(),
			Workspaces: suite.workspaces,
			Resolver:   names.NewResolver(db),
			Starter:    suite.starter,
			Panels:     suite.panels,
			Sessions:   sessions,
			Notifier:   suite.notifier,
			Locks:      registry,
		},
	)
	suite.Require().NoError(suite.scheduler.Start(suite.ctx))

	root := suite.initRepo()
	project, err := db.CreateProject(suite.ctx, &types.Project{
		Name:              "test project",
		Path:              root,
		DefaultBaseBranch: "main",
	})
	suite.Require().NoError(err)
	suite.project = project
}

func (suite *SchedulerTestSuite) TearDownTest() {
	suite.scheduler.Stop()
	suite.NoError(suite.db.Close())
}

func (suite *SchedulerTestSuite) initRepo() string {
	dir := suite.T().TempDir()
	for _, args := range [][]string{
		{"init", "-b", "main"},
		{"add", "."},
		{"commit", "--allow-empty", "-m", "initial commit"},
	} {
		full := append([]string{
			"-c", "user.name=test",
			"-c", "user.email=test@localhost",
		}, args...)
		cmd := exec.Command("git", full...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		suite.Require().NoError(err, "git %v: %s", args, out)
	}
	return dir
}

func (suite *SchedulerTestSuite) listSessions() []*types.Session {
	sessions, err := suite.db.ListSessions(suite.ctx, store.ListSessionsQuery{ProjectID: suite.project.ID})
	suite.Require().NoError(err)
	return sessions
}

// registerPanels binds a panel to every session as soon as it appears,
// playing the part of the external host.
func (suite *SchedulerTestSuite) registerPanels(stop <-chan struct{}) {
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(tick):
				for _, sess := range suite.listSessions() {
					if _, ok := suite.panels.Lookup(sess.ID); !ok {
						suite.panels.Register(sess.ID, "panel_"+sess.ID)
					}
				}
			}
		}
	}()
}

func (suite *SchedulerTestSuite) TestCreateWithoutPrompt() {
	_, err := suite.scheduler.SubmitCreate(suite.ctx, CreateJob{
		ProjectID:   suite.project.ID,
		DisplayName: "Fix Auth Bug",
	})
	suite.Require().NoError(err)

	suite.Eventually(func() bool {
		sessions := suite.listSessions()
		return len(sessions) == 1 && sessions[0].Status == types.SessionStatusStopped
	}, waitFor, tick)

	sess := suite.listSessions()[0]
	suite.Equal("Fix Auth Bug", sess.Name)
	suite.Equal("fix-auth-bug", sess.WorktreeName)
	suite.Equal("main", sess.BaseBranch)
	suite.NotEmpty(sess.BaseCommit)
	suite.DirExists(sess.WorktreePath)

	// No prompt, so no agent start.
	suite.Empty(suite.starter.startCalls())

	// Created event fired, and a completed job event followed.
	suite.Len(suite.notifier.byType(types.EventSessionCreated), 1)
	suite.Eventually(func() bool {
		return len(suite.notifier.byType(types.EventJobCompleted)) == 1
	}, waitFor, tick)
}

func (suite *SchedulerTestSuite) TestCreateAvoidsManualWorktree() {
	// A worktree placed by hand in the default folder, invisible to the
	// store. The uniqueness check must see it and step around it instead
	// of wiping it as a stale leftover.
	manual := filepath.Join(suite.project.Path, "worktrees", "fix-auth-bug")
	suite.Require().NoError(os.MkdirAll(manual, 0o755))
	marker := filepath.Join(manual, "precious.txt")
	suite.Require().NoError(os.WriteFile(marker, []byte("keep me"), 0o644))

	_, err := suite.scheduler.SubmitCreate(suite.ctx, CreateJob{
		ProjectID:   suite.project.ID,
		DisplayName: "Fix Auth Bug",
	})
	suite.Require().NoError(err)

	suite.Eventually(func() bool {
		sessions := suite.listSessions()
		return len(sessions) == 1 && sessions[0].Status == types.SessionStatusStopped
	}, waitFor, tick)

	sess := suite.listSessions()[0]
	suite.Equal("fix-auth-bug-2", sess.WorktreeName)
	suite.NotEqual(manual, sess.WorktreePath)
	suite.FileExists(marker)
}

func (suite *SchedulerTestSuite) TestCreateWithPromptStartsAgent() {
	stop := make(chan struct{})
	defer close(stop)
	suite.registerPanels(stop)

	_, err := suite.scheduler.SubmitCreate(suite.ctx, CreateJob{
		ProjectID: suite.project.ID,
		Prompt:    "Fix the auth bug",
		Tool:      types.AgentToolClaude,
	})
	suite.Require().NoError(err)

	suite.Eventually(func() bool {
		return len(suite.starter.startCalls()) == 1
	}, waitFor, tick)

	call := suite.starter.startCalls()[0]
	suite.NotEmpty(call.target.PanelID)
	suite.Empty(call.target.SessionID)
	suite.Equal("Fix the auth bug", call.req.Prompt)
	suite.Equal(types.AgentToolClaude, call.req.Tool)

	suite.Eventually(func() bool {
		sessions := suite.listSessions()
		return len(sessions) == 1 && sessions[0].Status == types.SessionStatusRunning
	}, waitFor, tick)
}

func (suite *SchedulerTestSuite) TestCreatePanelNeverRegistered() {
	// Rebuild with a tight ceiling so the test fails fast.
	suite.scheduler.Stop()
	suite.scheduler = New(
		suite.scheduler.cfg,
		config.Agents{PanelWaitAttempts: 2, PanelWaitInterval: time.Millisecond},
		suite.scheduler.deps,
	)
	suite.Require().NoError(suite.scheduler.Start(suite.ctx))

	_, err := suite.scheduler.SubmitCreate(suite.ctx, CreateJob{
		ProjectID: suite.project.ID,
		Prompt:    "Fix the auth bug",
	})
	suite.Require().NoError(err)

	suite.Eventually(func() bool {
		sessions := suite.listSessions()
		return len(sessions) == 1 && sessions[0].Status == types.SessionStatusFailed
	}, waitFor, tick)

	// The failure is descriptive and the artifacts stay inspectable.
	sess := suite.listSessions()[0]
	suite.Contains(sess.StatusMessage, "panel not registered")
	suite.DirExists(sess.WorktreePath)

	suite.Eventually(func() bool {
		return len(suite.notifier.byType(types.EventJobFailed)) == 1
	}, waitFor, tick)
}

func (suite *SchedulerTestSuite) TestBatchCreatesDistinctNames() {
	_, err := suite.scheduler.SubmitBatch(suite.ctx, CreateJob{
		ProjectID:   suite.project.ID,
		DisplayName: "Fix Auth Bug",
	}, 2)
	suite.Require().NoError(err)

	suite.Eventually(func() bool {
		return len(suite.listSessions()) == 2
	}, waitFor, tick)

	sessions := suite.listSessions()
	displayNames := map[string]bool{}
	worktrees := map[string]bool{}
	for _, sess := range sessions {
		displayNames[sess.Name] = true
		worktrees[sess.WorktreeName] = true
		suite.NotEmpty(sess.FolderID)
	}
	suite.Len(displayNames, 2)
	suite.Len(worktrees, 2)
	suite.Contains(worktrees, "fix-auth-bug-1")
	suite.Contains(worktrees, "fix-auth-bug-2")

	suite.Len(suite.notifier.byType(types.EventFolderCreated), 1)

	folders, err := suite.db.ListSessionFolders(suite.ctx, suite.project.ID)
	suite.NoError(err)
	suite.Len(folders, 1)
}

func (suite *SchedulerTestSuite) TestSubmitBatchRejectsNonPositiveCount() {
	for _, count := range []int{0, -3} {
		_, err := suite.scheduler.SubmitBatch(suite.ctx, CreateJob{
			ProjectID:   suite.project.ID,
			DisplayName: "Fix Auth Bug",
		}, count)
		suite.Error(err)
	}

	suite.Empty(suite.listSessions())
	folders, err := suite.db.ListSessionFolders(suite.ctx, suite.project.ID)
	suite.NoError(err)
	suite.Empty(folders)
}

func (suite *SchedulerTestSuite) TestConcurrentSameNameCreations() {
	for i := 0; i < 2; i++ {
		_, err := suite.scheduler.SubmitCreate(suite.ctx, CreateJob{
			ProjectID:   suite.project.ID,
			DisplayName: "Same Name",
		})
		suite.Require().NoError(err)
	}

	suite.Eventually(func() bool {
		sessions := suite.listSessions()
		if len(sessions) != 2 {
			return false
		}
		for _, sess := range sessions {
			if sess.Status != types.SessionStatusStopped {
				return false
			}
		}
		return true
	}, waitFor, tick)

	sessions := suite.listSessions()
	suite.NotEqual(sessions[0].Name, sessions[1].Name)
	suite.NotEqual(sessions[0].WorktreePath, sessions[1].WorktreePath)
	for _, sess := range sessions {
		suite.DirExists(sess.WorktreePath)
	}
}

func (suite *SchedulerTestSuite) TestCreateMissingProject() {
	_, err := suite.scheduler.SubmitCreate(suite.ctx, CreateJob{
		ProjectID:   "prj_missing",
		DisplayName: "Fix Auth Bug",
	})
	suite.Require().NoError(err)

	suite.Eventually(func() bool {
		return len(suite.notifier.byType(types.EventJobFailed)) == 1
	}, waitFor, tick)
	suite.Empty(suite.listSessions())
}

func (suite *SchedulerTestSuite) TestSetupCommandRuns() {
	suite.project.SetupCommand = "touch setup-ran.txt"
	_, err := suite.db.UpdateProject(suite.ctx, suite.project)
	suite.Require().NoError(err)

	_, err = suite.scheduler.SubmitCreate(suite.ctx, CreateJob{
		ProjectID:   suite.project.ID,
		DisplayName: "With Setup",
	})
	suite.Require().NoError(err)

	suite.Eventually(func() bool {
		sessions := suite.listSessions()
		return len(sessions) == 1 && sessions[0].Status == types.SessionStatusStopped
	}, waitFor, tick)

	sess := suite.listSessions()[0]
	suite.FileExists(filepath.Join(sess.WorktreePath, "setup-ran.txt"))
}

func (suite *SchedulerTestSuite) TestSetupCommandFailureFailsSession() {
	suite.project.SetupCommand = "exit 7"
	_, err := suite.db.UpdateProject(suite.ctx, suite.project)
	suite.Require().NoError(err)

	_, err = suite.scheduler.SubmitCreate(suite.ctx, CreateJob{
		ProjectID:   suite.project.ID,
		DisplayName: "Broken Setup",
	})
	suite.Require().NoError(err)

	suite.Eventually(func() bool {
		sessions := suite.listSessions()
		return len(sessions) == 1 && sessions[0].Status == types.SessionStatusFailed
	}, waitFor, tick)

	// The worktree survives for diagnosis.
	sess := suite.listSessions()[0]
	suite.Contains(sess.StatusMessage, "setup command")
	suite.DirExists(sess.WorktreePath)
}

func (suite *SchedulerTestSuite) TestInputDelivery() {
	stop := make(chan struct{})
	defer close(stop)
	suite.registerPanels(stop)

	_, err := suite.scheduler.SubmitCreate(suite.ctx, CreateJob{
		ProjectID:   suite.project.ID,
		DisplayName: "Target",
	})
	suite.Require().NoError(err)

	suite.Eventually(func() bool {
		return len(suite.listSessions()) == 1
	}, waitFor, tick)
	sess := suite.listSessions()[0]

	_, err = suite.scheduler.SubmitInput(suite.ctx, InputJob{
		SessionID: sess.ID,
		Input:     "yes, proceed",
	})
	suite.Require().NoError(err)

	suite.Eventually(func() bool {
		inputs := suite.starter.inputCalls()
		return len(inputs) == 1 && inputs[0] == "yes, proceed"
	}, waitFor, tick)
}

func (suite *SchedulerTestSuite) TestContinueSession() {
	stop := make(chan struct{})
	defer close(stop)
	suite.registerPanels(stop)

	_, err := suite.scheduler.SubmitCreate(suite.ctx, CreateJob{
		ProjectID:   suite.project.ID,
		DisplayName: "Target",
	})
	suite.Require().NoError(err)

	suite.Eventually(func() bool {
		sessions := suite.listSessions()
		return len(sessions) == 1 && sessions[0].Status == types.SessionStatusStopped
	}, waitFor, tick)
	sess := suite.listSessions()[0]

	_, err = suite.scheduler.SubmitContinue(suite.ctx, ContinueJob{
		SessionID: sess.ID,
		Prompt:    "now add tests",
	})
	suite.Require().NoError(err)

	suite.Eventually(func() bool {
		got, err := suite.db.GetSession(suite.ctx, sess.ID)
		return err == nil && got.Status == types.SessionStatusRunning
	}, waitFor, tick)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	payload, err := marshalEnvelope(&envelope{
		Kind:   JobKindCreate,
		Create: &CreateJob{ID: "job_1", ProjectID: "prj_1", BatchIndex: -1},
	})
	if err != nil {
		t.Fatal(err)
	}

	env, err := unmarshalEnvelope(payload)
	if err != nil {
		t.Fatal(err)
	}
	if env.Kind != JobKindCreate || env.Create == nil || env.Create.ID != "job_1" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestEnvelopeValidation(t *testing.T) {
	if _, err := marshalEnvelope(&envelope{Kind: JobKindCreate}); err == nil {
		t.Fatal("expected error for missing payload")
	}
	if _, err := unmarshalEnvelope([]byte(`{"kind":"bogus"}`)); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
