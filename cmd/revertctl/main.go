package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/0xPuncker/chronos-console/internal/console"
	"github.com/0xPuncker/chronos-console/pkg/types"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	timeout   time.Duration
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "revertctl",
		Short:        "Inspect and revert chronos jobs through the console API",
		SilenceUsage: true,
	}

	defaultServer := os.Getenv("REVERTCTL_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	root.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "console server URL")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(newJobsCmd(), newShowCmd(), newRevertCmd(), newDeleteCmd(), newTasksCmd())
	return root
}

func client() *apiClient {
	return newAPIClient(serverURL, timeout)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", arg)
	}
	return id, nil
}

func newJobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List the jobs the agent knows about",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Jobs []*types.Job `json:"jobs"`
			}
			if err := client().do(cmd.Context(), "GET", "/api/v1/jobs", nil, nil, &resp); err != nil {
				return err
			}
			printJobs(cmd.OutOrStdout(), resp.Jobs)
			return nil
		},
	}
}

func newShowCmd() *cobra.Command {
	var (
		version   int64
		tab       string
		dependsOn bool
	)
	cmd := &cobra.Command{
		Use:   "show job-id",
		Short: "Show a version of a job as the revert page renders it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			query := url.Values{}
			if version > 0 {
				query.Set("version", strconv.FormatInt(version, 10))
			}
			if tab != "" {
				query.Set("tab", tab)
			}
			if dependsOn {
				query.Set("dependsOn", "true")
			}

			var view console.RouteView
			path := fmt.Sprintf("/api/v1/jobs/%d/revert", id)
			if err := client().do(cmd.Context(), "GET", path, query, nil, &view); err != nil {
				return err
			}
			printView(cmd.OutOrStdout(), &view)
			return nil
		},
	}
	cmd.Flags().Int64Var(&version, "version", 0, "version to show (latest when omitted)")
	cmd.Flags().StringVar(&tab, "tab", "", "code panel: code or resultQuery")
	cmd.Flags().BoolVar(&dependsOn, "depends-on", false, "describe the schedule of the job this one depends on")
	return cmd
}

func newRevertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revert job-id version",
		Short: "Restore a previous version of a job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			version, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || version <= 0 {
				return fmt.Errorf("invalid version %q", args[1])
			}

			body := strings.NewReader(fmt.Sprintf(`{"version":%d}`, version))
			path := fmt.Sprintf("/api/v1/jobs/%d/revert", id)
			if err := client().do(cmd.Context(), "POST", path, nil, body, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %d reverted to version %d\n", id, version)
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete job-id",
		Short: "Delete a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			path := fmt.Sprintf("/api/v1/jobs/%d", id)
			if err := client().do(cmd.Context(), "DELETE", path, nil, nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %d deleted\n", id)
			return nil
		},
	}
}

func newTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List the console's background tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Tasks []struct {
					types.TaskConfig
					NextRun *time.Time `json:"next_run"`
				} `json:"tasks"`
				Running bool `json:"running"`
			}
			if err := client().do(cmd.Context(), "GET", "/api/v1/tasks", nil, nil, &resp); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSCHEDULE\tENABLED\tNEXT RUN")
			for _, task := range resp.Tasks {
				next := "-"
				if task.NextRun != nil {
					next = task.NextRun.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", task.Name, task.Schedule, task.Enabled, next)
			}
			return w.Flush()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run task-name",
		Short: "Run a background task now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/api/v1/tasks/%s/run", url.PathEscape(args[0]))
			if err := client().do(cmd.Context(), "POST", path, nil, nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s completed\n", args[0])
			return nil
		},
	})
	return cmd
}

func printJobs(out io.Writer, jobs []*types.Job) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tSCHEDULE\tENABLED")
	for _, job := range jobs {
		schedule := job.CronString
		if job.Parent != nil {
			schedule = fmt.Sprintf("after #%d", *job.Parent)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\n", job.ID, job.Name, job.Type, schedule, job.Enabled)
	}
	w.Flush()
}

func printView(out io.Writer, view *console.RouteView) {
	fmt.Fprintln(out, view.Title)
	if view.Error != "" {
		fmt.Fprintf(out, "error: %s\n", view.Error)
	}
	form := view.Form
	if form == nil || form.Loading {
		fmt.Fprintln(out, "Loading...")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Version:\t%d\n", form.Version)
	fmt.Fprintf(w, "Name:\t%s\n", form.Name)
	fmt.Fprintf(w, "Type:\t%s\n", form.Type)
	fmt.Fprintf(w, "Enabled:\t%t\n", form.Enabled)
	if form.Description != "" {
		fmt.Fprintf(w, "Description:\t%s\n", form.Description)
	}
	if c := form.Credentials; c != nil {
		fmt.Fprintf(w, "Connection:\t%s %s / %s\n", c.Driver, c.User, c.Password)
	}
	if s := form.Schedule; s != nil {
		if s.DependsOn {
			fmt.Fprintf(w, "Depends on:\t%s\n", s.ParentName)
		} else {
			fmt.Fprintf(w, "Schedule:\t%s\n", s.CronString)
		}
		if s.Phrase != "" {
			fmt.Fprintf(w, "\t%s\n", s.Phrase)
		}
		if s.NextRun != nil {
			fmt.Fprintf(w, "Next run:\t%s (in %s)\n", s.NextRun.Format(time.RFC3339), s.NextRunIn)
		}
	}
	if len(form.StatusEmail) > 0 {
		fmt.Fprintf(w, "Status email:\t%s\n", strings.Join(form.StatusEmail, ", "))
	}
	if len(form.ResultEmail) > 0 {
		fmt.Fprintf(w, "Result email:\t%s\n", strings.Join(form.ResultEmail, ", "))
	}
	w.Flush()

	if form.Code != nil {
		fmt.Fprintf(out, "\n--- %s ---\n%s\n", form.Code.Mode, form.Code.Value)
	}

	if len(form.Versions) > 0 {
		fmt.Fprintln(out)
		for _, v := range form.Versions {
			marker := " "
			if v.Selected {
				marker = "*"
			}
			fmt.Fprintf(out, "%s v%d  %s\n", marker, v.Version, v.CreatedAt.Format(time.RFC3339))
		}
	}
}
