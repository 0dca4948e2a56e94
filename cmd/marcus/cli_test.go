package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marcus/internal/agent"
	"marcus/internal/clock"
	"marcus/internal/collaborators"
	"marcus/internal/config"
	"marcus/internal/core"
	"marcus/internal/project"
)

func newTestCLI(t *testing.T, seedTasks []collaborators.BoardTask) *CLI {
	t.Helper()
	cfg := config.Defaults()
	agents := agent.NewRegistry()
	clk := clock.NewVirtual(time.Now())

	factory := core.NewProjectFactory(
		cfg,
		agents,
		func(projectID string) (collaborators.KanbanClient, error) {
			return &seededKanban{tasks: seedTasks}, nil
		},
		func(projectID string) collaborators.Persistence { return collaborators.NewInMemoryPersistence() },
		collaborators.NewFSWorkspace(t.TempDir()),
		clk,
		nil,
		nil,
	)

	mgr, err := project.New(project.Config{CacheCapacity: 4}, factory, clk, nil)
	require.NoError(t, err)
	return &CLI{core: core.New(cfg, agents, mgr, nil)}
}

type seededKanban struct {
	tasks []collaborators.BoardTask
}

func (k *seededKanban) Connect(ctx context.Context) error    { return nil }
func (k *seededKanban) Disconnect(ctx context.Context) error { return nil }
func (k *seededKanban) ListTasks(ctx context.Context) ([]collaborators.BoardTask, error) {
	return append([]collaborators.BoardTask(nil), k.tasks...), nil
}
func (k *seededKanban) CreateTask(ctx context.Context, spec collaborators.TaskSpec) (string, error) {
	return "", nil
}
func (k *seededKanban) UpdateTask(ctx context.Context, id string, patch collaborators.TaskPatch) error {
	return nil
}
func (k *seededKanban) Assign(ctx context.Context, taskID, agentID string) error { return nil }
func (k *seededKanban) Comment(ctx context.Context, taskID, text string) error   { return nil }

func TestRegisterAgentCommandSucceeds(t *testing.T) {
	cli := newTestCLI(t, nil)
	root := NewRootCommand(cli)
	root.SetArgs([]string{"register-agent", "a1", "--name", "Ada", "--role", "engineer", "--skill", "go"})
	require.NoError(t, root.Execute())

	snap, err := cli.core.GetAgentStatus(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, "Ada", snap.Agent.Name)
}

func TestRequestTaskCommandFailsWithoutActiveProject(t *testing.T) {
	cli := newTestCLI(t, nil)
	root := NewRootCommand(cli)
	root.SetArgs([]string{"request-task", "a1"})
	require.Error(t, root.Execute())
}

func TestSwitchProjectCommandMakesProjectActive(t *testing.T) {
	cli := newTestCLI(t, nil)
	ctx := context.Background()

	root := NewRootCommand(cli)
	root.SetArgs([]string{"switch-project", "p1"})
	require.NoError(t, root.Execute())

	summaries := cli.core.ListProjects(ctx)
	require.Len(t, summaries, 1)
	require.True(t, summaries[0].Active)
}

func TestListProjectsCommandMarksActiveProject(t *testing.T) {
	cli := newTestCLI(t, nil)
	ctx := context.Background()
	require.NoError(t, cli.core.SwitchProject(ctx, "p1"))

	root := NewRootCommand(cli)
	root.SetArgs([]string{"list-projects"})
	require.NoError(t, root.Execute())
}
