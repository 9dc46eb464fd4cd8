package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/data-douser/swamp-go/api"
	"github.com/data-douser/swamp-go/internal/assess"
	"github.com/data-douser/swamp-go/internal/errdefs"
	"github.com/data-douser/swamp-go/internal/handler"
	"github.com/data-douser/swamp-go/internal/status"
)

func (a *app) assessCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "assess", Short: "Schedule and track assessments"}
	cmd.AddCommand(a.assessRunCmd(), a.assessListCmd(), a.assessStatusCmd(), a.assessDeleteCmd())
	return cmd
}

func (a *app) assessRunCmd() *cobra.Command {
	var req assess.Request
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Assess a package version with one or more tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := a.handlers(cmd.Context())
			if err != nil {
				return err
			}
			res, err := assess.New(f, a.cfg.DefaultPlatforms, a.logger).Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			if !res.Accepted {
				return errors.New("the service did not accept the assessment request")
			}
			for _, r := range res.Runs {
				fmt.Fprintln(a.stdout, r.ID())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.ProjectID, "project", "", "Project UUID")
	cmd.Flags().StringVar(&req.PackageVersionID, "package-version", "", "Package version UUID")
	cmd.Flags().StringSliceVar(&req.ToolIDs, "tool", nil, "Tool UUID (repeatable)")
	cmd.Flags().StringSliceVar(&req.PlatformVersionIDs, "platform", nil, "Platform version UUID (repeatable, default: the package type's default platform)")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("package-version")
	_ = cmd.MarkFlagRequired("tool")
	return cmd
}

func (a *app) assessListCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the execution records of a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := a.records(cmd, project, nil)
			if err != nil {
				return err
			}
			t := newTable(a.stdout, "RUN UUID", "STATUS", "PACKAGE", "VERSION", "TOOL", "PLATFORM", "WEAKNESSES")
			for _, r := range records {
				t.row(r.RunID(), r.Status(), r.PackageName(), r.PackageVersion(), r.ToolName(), r.PlatformName(), r.WeaknessCount())
			}
			return t.flush()
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "Project UUID")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func (a *app) assessStatusCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "status [RUN-ID...]",
		Short: "Summarize the state of a project's assessments",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := a.records(cmd, project, args)
			if err != nil {
				return err
			}
			writeSummary(a.stdout, status.Summarize(records))
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "Project UUID")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func writeSummary(w io.Writer, s status.Summary) {
	for _, st := range []status.State{status.Success, status.Failed, status.InProgress, status.Unknown} {
		fmt.Fprintf(w, "%s: %d\n", st, s[st])
	}
	fmt.Fprintf(w, "Total: %d\n", s.Total())
	fmt.Fprintf(w, "Done: %s\n", yesNo(s.Done()))
}

// records lists the project's execution records, restricted to runIDs
// when any are given.
func (a *app) records(cmd *cobra.Command, project string, runIDs []string) ([]*api.AssessmentRecord, error) {
	f, err := a.handlers(cmd.Context())
	if err != nil {
		return nil, err
	}
	p, err := f.Projects().Lookup(cmd.Context(), project)
	if err != nil {
		return nil, err
	}
	all, err := f.AssessmentRecords().List(cmd.Context(), p.ID())
	if err != nil {
		return nil, err
	}
	if len(runIDs) == 0 {
		return all, nil
	}
	out := make([]*api.AssessmentRecord, 0, len(runIDs))
	for _, id := range runIDs {
		i := slices.IndexFunc(all, func(r *api.AssessmentRecord) bool { return r.RunID() == id })
		if i < 0 {
			return nil, &errdefs.InvalidIdentifierError{Kind: "Assessment Run", ID: id}
		}
		out = append(out, all[i])
	}
	return out, nil
}

func (a *app) assessDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete RUN-ID...",
		Short: "Delete assessment runs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.handlers(cmd.Context())
			if err != nil {
				return err
			}
			return a.deleteAll(cmd.Context(), f.AssessmentRuns().Delete, args)
		},
	}
}

func (a *app) resultsCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{Use: "results", Short: "Work with assessment results"}
	cmd.PersistentFlags().StringVar(&project, "project", "", "Project UUID")
	_ = cmd.MarkPersistentFlagRequired("project")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List a project's assessment results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := a.handlers(cmd.Context())
			if err != nil {
				return err
			}
			results, err := projectResults(cmd.Context(), f, project)
			if err != nil {
				return err
			}
			t := newTable(a.stdout, "RESULT UUID", "PACKAGE", "TOOL", "PLATFORM", "WEAKNESSES")
			for _, r := range results {
				t.row(r.ID(), r.PackageName(), r.ToolName(), r.PlatformName(), r.WeaknessCount())
			}
			return t.flush()
		},
	})

	var name string
	download := &cobra.Command{
		Use:   "download RESULT-ID",
		Short: "Download a SCARF report to the export storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := a.handlers(ctx)
			if err != nil {
				return err
			}
			results, err := projectResults(ctx, f, project)
			if err != nil {
				return err
			}
			i := slices.IndexFunc(results, func(r *api.AssessmentResults) bool { return r.ID() == args[0] })
			if i < 0 {
				return &errdefs.InvalidIdentifierError{Kind: "Assessment Result", ID: args[0]}
			}
			objName := name
			if objName == "" {
				objName = args[0] + ".xml"
			}
			n, err := a.export(ctx, objName, "application/xml", func(w io.Writer) (int64, error) {
				return f.AssessmentResults().Scarf(ctx, results[i], w)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s\t%d bytes\n", objName, n)
			return nil
		},
	}
	download.Flags().StringVar(&name, "name", "", "Object name in the export storage (default: RESULT-ID.xml)")
	cmd.AddCommand(download)
	return cmd
}

func projectResults(ctx context.Context, f *handler.Factory, project string) ([]*api.AssessmentResults, error) {
	p, err := f.Projects().Lookup(ctx, project)
	if err != nil {
		return nil, err
	}
	return f.AssessmentResults().ForProject(ctx, p)
}
