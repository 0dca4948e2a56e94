package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"marcus/internal/core"
	"marcus/internal/events"
)

// CLI holds the state every subcommand shares: the wired kernel.
type CLI struct {
	core *core.Core
}

// NewRootCommand builds the marcus command tree, one subcommand per
// operation-table entry core.Core exposes.
func NewRootCommand(cli *CLI) *cobra.Command {
	root := &cobra.Command{
		Use:   "marcus",
		Short: "Multi-agent task coordination kernel",
		Long: fmt.Sprintf(`%s

Marcus coordinates a pool of worker agents against a shared task board:
it assigns ready work, leases it to whichever agent asked, tracks
progress and blockers, and reconciles against the board when agents or
the board itself fall out of sync.

%s
  marcus switch-project acme-website
  marcus register-agent a1 --name Ada --role engineer --skill go --skill sql
  marcus request-task a1
  marcus report-progress a1 t-42 --pct 60 --notes "API scaffolding done"
  marcus task-status t-42`,
			bold("Marcus"), bold("EXAMPLES:")),
	}

	root.AddCommand(
		newSwitchProjectCommand(cli),
		newListProjectsCommand(cli),
		newRegisterAgentCommand(cli),
		newRequestTaskCommand(cli),
		newReportProgressCommand(cli),
		newReportBlockerCommand(cli),
		newUnblockTaskCommand(cli),
		newCompleteTaskCommand(cli),
		newTaskContextCommand(cli),
		newTaskStatusCommand(cli),
		newAgentStatusCommand(cli),
		newWatchEventsCommand(cli),
	)
	return root
}

func newSwitchProjectCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "switch-project <project-id>",
		Short: "Make <project-id> the active project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.core.SwitchProject(cmd.Context(), args[0]); err != nil {
				return err
			}
			printSuccess("switched to project " + args[0])
			return nil
		},
	}
}

func newListProjectsCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "list-projects",
		Short: "List every cached project",
		RunE: func(cmd *cobra.Command, args []string) error {
			summaries := cli.core.ListProjects(cmd.Context())
			if len(summaries) == 0 {
				printDim("no projects cached yet")
				return nil
			}
			for _, s := range summaries {
				marker := " "
				if s.Active {
					marker = green("*")
				}
				fmt.Printf("%s %s\n", marker, s.ProjectID)
			}
			return nil
		},
	}
}

func newRegisterAgentCommand(cli *CLI) *cobra.Command {
	var name, role string
	var skills []string
	var capacity float64
	cmd := &cobra.Command{
		Use:   "register-agent <agent-id>",
		Short: "Register or update a worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ag, err := cli.core.RegisterAgent(cmd.Context(), args[0], name, role, skills, capacity)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("registered agent %s (%s)", ag.ID, ag.Role))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&role, "role", "", "Role (e.g. engineer, reviewer)")
	cmd.Flags().StringSliceVar(&skills, "skill", nil, "Skill the agent declares (repeatable)")
	cmd.Flags().Float64Var(&capacity, "capacity-hours-wk", 40, "Weekly capacity in hours")
	return cmd
}

func newRequestTaskCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "request-task <agent-id>",
		Short: "Reserve the highest-scoring ready task for an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, lease, payload, err := cli.core.RequestNextTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printSectionHeader("assigned")
			printField("task", t.ID+" - "+t.Name)
			printField("status", statusColor(string(t.Status)))
			printField("lease expires", lease.ExpiresAt.Format("15:04:05"))
			if payload.ImplementationHint != "" {
				printField("hint", payload.ImplementationHint)
			}
			if len(payload.CompletedPredecessors) > 0 {
				names := make([]string, 0, len(payload.CompletedPredecessors))
				for _, p := range payload.CompletedPredecessors {
					names = append(names, p.Name)
				}
				printField("predecessors", strings.Join(names, ", "))
			}
			return nil
		},
	}
}

func newReportProgressCommand(cli *CLI) *cobra.Command {
	var pct int
	var notes string
	cmd := &cobra.Command{
		Use:   "report-progress <agent-id> <task-id>",
		Short: "Report percent-complete on a leased task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.core.ReportProgress(cmd.Context(), args[0], args[1], pct, notes); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("%s now at %d%%", args[1], pct))
			return nil
		},
	}
	cmd.Flags().IntVar(&pct, "pct", 0, "Percent complete, 0-100")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-text progress note")
	return cmd
}

func newReportBlockerCommand(cli *CLI) *cobra.Command {
	var description, severity string
	cmd := &cobra.Command{
		Use:   "report-blocker <agent-id> <task-id>",
		Short: "Record an obstruction without releasing the task's lease",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.core.ReportBlocker(cmd.Context(), args[0], args[1], description, severity); err != nil {
				return err
			}
			printSuccess(red("blocked") + ": " + args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "What's blocking progress")
	cmd.Flags().StringVar(&severity, "severity", "medium", "Severity: low, medium, high")
	return cmd
}

func newUnblockTaskCommand(cli *CLI) *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "unblock-task <task-id>",
		Short: "Clear the most recent outstanding blocker on a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.core.UnblockTask(cmd.Context(), args[0], notes); err != nil {
				return err
			}
			printSuccess("unblocked " + args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "resolution-notes", "", "How the blocker was resolved")
	return cmd
}

func newCompleteTaskCommand(cli *CLI) *cobra.Command {
	var outcome string
	cmd := &cobra.Command{
		Use:   "complete-task <agent-id> <task-id>",
		Short: "Mark a task done via the explicit completion path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.core.CompleteTask(cmd.Context(), args[0], args[1], outcome); err != nil {
				return err
			}
			printSuccess(green("done") + ": " + args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&outcome, "outcome", "", "Free-text completion summary")
	return cmd
}

func newTaskContextCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "task-context <task-id> <agent-id>",
		Short: "Re-fetch a task's deterministic context payload",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := cli.core.GetTaskContext(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			printSectionHeader(payload.Task.ID + " - " + payload.Task.Name)
			if payload.ImplementationHint != "" {
				printField("hint", payload.ImplementationHint)
			}
			for _, a := range payload.ProvidedArtifacts {
				printField("artifact", a.Location)
			}
			for _, p := range payload.CompletedPredecessors {
				printField("predecessor", p.Name)
			}
			return nil
		},
	}
}

func newTaskStatusCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "task-status <task-id>",
		Short: "Show a task's current status and lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := cli.core.GetTaskStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printField("status", statusColor(string(snap.Task.Status)))
			printField("assigned to", valueOr(snap.Task.AssignedTo, "-"))
			if snap.Lease != nil {
				printField("lease state", string(snap.Lease.State))
				printField("last progress", strconv.Itoa(snap.Lease.LastProgressPct)+"%")
			}
			return nil
		},
	}
}

func newAgentStatusCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "agent-status <agent-id>",
		Short: "Show an agent's registration and current assignments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := cli.core.GetAgentStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printField("name", snap.Agent.Name)
			printField("role", snap.Agent.Role)
			printField("skills", strings.Join(snap.Agent.Skills, ", "))
			for _, assignment := range snap.Assignments {
				printField("assignment", assignment.TaskID)
			}
			return nil
		},
	}
}

func newWatchEventsCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "watch-events [kind...]",
		Short: "Stream events from the active project's event bus",
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := make([]events.Kind, 0, len(args))
			for _, a := range args {
				kinds = append(kinds, events.Kind(a))
			}
			ch, err := cli.core.SubscribeEvents(cmd.Context(), kinds...)
			if err != nil {
				return err
			}
			for ev := range ch {
				fmt.Printf("%s %s %s\n", gray(ev.Timestamp.Format("15:04:05")), blue(string(ev.Kind)), ev.CorrelationID)
			}
			return nil
		},
	}
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func runCLI(cli *CLI) int {
	root := NewRootCommand(cli)
	if err := root.ExecuteContext(context.Background()); err != nil {
		printError(err)
		return 1
	}
	return 0
}
