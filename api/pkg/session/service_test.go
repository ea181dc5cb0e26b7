package session

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/conductorhq/conductor/api/pkg/config"
	"github.com/conductorhq/conductor/api/pkg/locks"
	"github.com/conductorhq/conductor/api/pkg/store"
	"github.com/conductorhq/conductor/api/pkg/types"
	"github.com/conductorhq/conductor/api/pkg/workspace"
)

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

type ServiceTestSuite struct {
	suite.Suite
	ctx        context.Context
	db         *store.SQLStore
	workspaces *workspace.Manager
	notifier   *recordingNotifier
	svc        *Service
	project    *types.Project
}

func TestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func (suite *ServiceTestSuite) SetupTest() {
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

	cfg := config.Workspaces{Folder: "worktrees", DeleteBranchOnArchive: true}
	registry := locks.NewRegistry()
	suite.workspaces = workspace.NewManager(cfg, registry)
	suite.notifier = &recordingNotifier{}
	suite.svc = NewService(cfg, db, suite.workspaces, suite.notifier, registry)

	root := suite.initRepo()
	project, err := db.CreateProject(suite.ctx, &types.Project{
		Name: "test project",
		Path: root,
	})
	suite.Require().NoError(err)
	suite.project = project
}

func (suite *ServiceTestSuite) TearDownTest() {
	suite.NoError(suite.db.Close())
}

func (suite *ServiceTestSuite) git(dir string, args ...string) string {
	full := append([]string{
		"-c", "user.name=test",
		"-c", "user.email=test@localhost",
	}, args...)
	cmd := exec.Command("git", full...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	suite.Require().NoError(err, "git %v: %s", args, out)
	return string(out)
}

func (suite *ServiceTestSuite) initRepo() string {
	dir := suite.T().TempDir()
	suite.git(dir, "init", "-b", "main")
	suite.Require().NoError(os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	suite.git(dir, "add", ".")
	suite.git(dir, "commit", "-m", "initial commit")
	return dir
}

// newSession materializes a worktree and persists the matching row, the
// way the creation pipeline does.
func (suite *ServiceTestSuite) newSession(name string, status types.SessionStatus) *types.Session {
	ws, err := suite.workspaces.Create(suite.ctx, suite.project.Path, name, "", "main", "")
	suite.Require().NoError(err)

	created, err := suite.db.CreateSession(suite.ctx, types.Session{
		Name:         name,
		ProjectID:    suite.project.ID,
		WorktreePath: ws.Path,
		WorktreeName: name,
		Branch:       ws.Branch,
		BaseBranch:   ws.BaseBranch,
		BaseCommit:   ws.BaseCommit,
		Status:       status,
	})
	suite.Require().NoError(err)
	return created
}

func (suite *ServiceTestSuite) TestGetPopulatesViewStatus() {
	created := suite.newSession("fix-auth-bug", types.SessionStatusStopped)

	got, err := suite.svc.Get(suite.ctx, created.ID)
	suite.NoError(err)
	suite.Equal(types.ViewStatusCompletedUnviewed, got.ViewStatus)
}

func (suite *ServiceTestSuite) TestMarkViewedCollapsesOverlay() {
	created := suite.newSession("fix-auth-bug", types.SessionStatusStopped)

	_, err := suite.svc.MarkViewed(suite.ctx, created.ID)
	suite.NoError(err)

	got, err := suite.svc.Get(suite.ctx, created.ID)
	suite.NoError(err)
	suite.Equal(types.ViewStatusStopped, got.ViewStatus)

	suite.Len(suite.notifier.byType(types.EventSessionUpdated), 1)
}

func (suite *ServiceTestSuite) TestUpdateStatusNotifies() {
	created := suite.newSession("fix-auth-bug", types.SessionStatusPending)

	suite.NoError(suite.svc.UpdateStatus(suite.ctx, created.ID, types.SessionStatusRunning, ""))

	got, err := suite.svc.Get(suite.ctx, created.ID)
	suite.NoError(err)
	suite.Equal(types.SessionStatusRunning, got.Status)
	suite.Equal(types.ViewStatusRunning, got.ViewStatus)
	suite.Len(suite.notifier.byType(types.EventSessionUpdated), 1)
}

func (suite *ServiceTestSuite) TestListPopulatesViewStatus() {
	suite.newSession("one", types.SessionStatusRunning)
	suite.newSession("two", types.SessionStatusPending)

	sessions, err := suite.svc.List(suite.ctx, store.ListSessionsQuery{ProjectID: suite.project.ID})
	suite.NoError(err)
	suite.Len(sessions, 2)
	for _, s := range sessions {
		suite.NotEmpty(s.ViewStatus)
	}
}

func (suite *ServiceTestSuite) TestListWithGitState() {
	ahead := suite.newSession("ahead", types.SessionStatusRunning)
	suite.newSession("clean", types.SessionStatusRunning)

	suite.Require().NoError(os.WriteFile(filepath.Join(ahead.WorktreePath, "a.txt"), []byte("a\n"), 0o644))
	suite.git(ahead.WorktreePath, "add", "a.txt")
	suite.git(ahead.WorktreePath, "commit", "-m", "workspace work")
	suite.git(suite.project.Path, "commit", "--allow-empty", "-m", "main moves on")

	sessions, err := suite.svc.ListWithGitState(suite.ctx, store.ListSessionsQuery{ProjectID: suite.project.ID})
	suite.NoError(err)
	suite.Require().Len(sessions, 2)

	byName := map[string]*types.Session{}
	for _, s := range sessions {
		byName[s.Name] = s
	}
	suite.Equal(1, byName["ahead"].CommitsAhead)
	suite.Equal(1, byName["ahead"].CommitsBehind)
	suite.Equal(0, byName["clean"].CommitsAhead)
	suite.Equal(1, byName["clean"].CommitsBehind)
}

func (suite *ServiceTestSuite) TestCaptureDiffSequence() {
	created := suite.newSession("fix-auth-bug", types.SessionStatusRunning)

	path := filepath.Join(created.WorktreePath, "a.txt")
	suite.Require().NoError(os.WriteFile(path, []byte("one\n"), 0o644))
	suite.git(created.WorktreePath, "add", "a.txt")
	suite.git(created.WorktreePath, "commit", "-m", "add a")

	first, err := suite.svc.CaptureDiff(suite.ctx, created.ID)
	suite.NoError(err)
	suite.Equal(int64(1), first.Sequence)
	suite.Equal(created.BaseCommit, first.BeforeCommit)
	suite.Equal(1, first.Additions)

	suite.Require().NoError(os.WriteFile(path, []byte("one\ntwo\n"), 0o644))
	second, err := suite.svc.CaptureDiff(suite.ctx, created.ID)
	suite.NoError(err)
	suite.Equal(int64(2), second.Sequence)
}

func (suite *ServiceTestSuite) TestArchiveRemovesWorktreeAndBranch() {
	created := suite.newSession("fix-auth-bug", types.SessionStatusStopped)
	suite.DirExists(created.WorktreePath)

	suite.NoError(suite.svc.Archive(suite.ctx, created.ID))

	suite.NoDirExists(created.WorktreePath)

	// Branch is gone because DeleteBranchOnArchive is set.
	branches, err := suite.workspaces.Branches(suite.ctx, suite.project.Path)
	suite.NoError(err)
	suite.NotContains(branches, created.Branch)

	// The row survives, hidden from default listings.
	sessions, err := suite.svc.List(suite.ctx, store.ListSessionsQuery{ProjectID: suite.project.ID})
	suite.NoError(err)
	suite.Empty(sessions)

	archived, err := suite.svc.List(suite.ctx, store.ListSessionsQuery{
		ProjectID:       suite.project.ID,
		IncludeArchived: true,
	})
	suite.NoError(err)
	suite.Len(archived, 1)

	suite.Len(suite.notifier.byType(types.EventSessionDeleted), 1)
}

func (suite *ServiceTestSuite) TestArchiveToleratesMissingWorktree() {
	created := suite.newSession("fix-auth-bug", types.SessionStatusStopped)

	// The user deleted the worktree directory manually.
	suite.Require().NoError(os.RemoveAll(created.WorktreePath))

	suite.NoError(suite.svc.Archive(suite.ctx, created.ID))
}

func (suite *ServiceTestSuite) TestResetInterrupted() {
	running := suite.newSession("running", types.SessionStatusRunning)
	pending := suite.newSession("pending", types.SessionStatusPending)
	stopped := suite.newSession("stopped", types.SessionStatusStopped)

	suite.NoError(suite.svc.ResetInterrupted(suite.ctx))

	for _, id := range []string{running.ID, pending.ID} {
		got, err := suite.svc.Get(suite.ctx, id)
		suite.NoError(err)
		suite.Equal(types.SessionStatusStopped, got.Status)
	}

	got, err := suite.svc.Get(suite.ctx, stopped.ID)
	suite.NoError(err)
	suite.Equal(types.SessionStatusStopped, got.Status)
}
