package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/noah-isme/tahfidz-api/internal/app"
	"github.com/noah-isme/tahfidz-api/internal/dto"
	"github.com/noah-isme/tahfidz-api/internal/models"
	"github.com/noah-isme/tahfidz-api/pkg/export"
)

// backend is the slice of the application the CLI drives.
type backend interface {
	UnitBlocks(ctx context.Context, code string) (*dto.UnitBlocks, error)
	Progress(ctx context.Context, learnerID string) (*dto.LearnerProgress, error)
	Cohort(ctx context.Context, cohortID string) (*dto.CohortProgress, error)
	Export(ctx context.Context, learnerID string, format export.Format) (*dto.ExportFile, error)
	IssueWarning(ctx context.Context, req dto.IssueWarningRequest) (*dto.WarningResponse, error)
	CancelWarning(ctx context.Context, warningID string) (*dto.CancelWarningResponse, error)
	ListWarnings(ctx context.Context, learnerID string) ([]models.WarningLetter, error)
}

type backendOpener func(ctx context.Context, actor *models.JWTClaims) (backend, func(), error)

type appBackend struct {
	app   *app.App
	actor *models.JWTClaims
}

var cliMeta = dto.RequestMeta{UserAgent: "progressctl"}

func (b *appBackend) UnitBlocks(ctx context.Context, code string) (*dto.UnitBlocks, error) {
	return b.app.Progress.UnitBlocks(ctx, code)
}

func (b *appBackend) Progress(ctx context.Context, learnerID string) (*dto.LearnerProgress, error) {
	view, _, err := b.app.Progress.Get(ctx, learnerID, b.actor)
	return view, err
}

func (b *appBackend) Cohort(ctx context.Context, cohortID string) (*dto.CohortProgress, error) {
	return b.app.Progress.CohortOverview(ctx, cohortID, b.actor)
}

func (b *appBackend) Export(ctx context.Context, learnerID string, format export.Format) (*dto.ExportFile, error) {
	return b.app.Exports.ExportProgress(ctx, learnerID, string(format), b.actor)
}

func (b *appBackend) IssueWarning(ctx context.Context, req dto.IssueWarningRequest) (*dto.WarningResponse, error) {
	return b.app.Escalation.Issue(ctx, req, b.actor, cliMeta)
}

func (b *appBackend) CancelWarning(ctx context.Context, warningID string) (*dto.CancelWarningResponse, error) {
	return b.app.Escalation.Cancel(ctx, warningID, b.actor, cliMeta)
}

func (b *appBackend) ListWarnings(ctx context.Context, learnerID string) ([]models.WarningLetter, error) {
	return b.app.Escalation.List(ctx, learnerID, b.actor)
}

type rootOptions struct {
	actor  string
	output string
}

func newRootCmd(open backendOpener) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "progressctl",
		Short:         "Inspect tahfidz progress and manage warning letters",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.output {
			case "table", "json":
				return nil
			default:
				return fmt.Errorf("unsupported output %q (use table or json)", opts.output)
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.actor, "actor", "progressctl", "operator id recorded as issuer and in the audit trail")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "output format: table or json")

	// withBackend opens the application for one command and always releases it.
	withBackend := func(run func(ctx context.Context, b backend, out io.Writer, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			actor := &models.JWTClaims{UserID: opts.actor, Role: models.RoleAdmin, FullName: opts.actor}
			b, cleanup, err := open(cmd.Context(), actor)
			if err != nil {
				return err
			}
			if cleanup != nil {
				defer cleanup()
			}
			return run(cmd.Context(), b, cmd.OutOrStdout(), args)
		}
	}

	root.AddCommand(
		newBlocksCmd(opts, withBackend),
		newProgressCmd(opts, withBackend),
		newCohortCmd(opts, withBackend),
		newExportCmd(withBackend),
		newWarnCmd(opts, withBackend),
	)
	return root
}

type runWrapper func(run func(ctx context.Context, b backend, out io.Writer, args []string) error) func(*cobra.Command, []string) error

func newBlocksCmd(opts *rootOptions, with runWrapper) *cobra.Command {
	return &cobra.Command{
		Use:   "blocks <unit-code>",
		Short: "Print the generated block schedule of a curriculum unit",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(ctx context.Context, b backend, out io.Writer, args []string) error {
			blocks, err := b.UnitBlocks(ctx, args[0])
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return writeJSON(out, blocks)
			}
			return renderBlocks(out, blocks)
		}),
	}
}

func newProgressCmd(opts *rootOptions, with runWrapper) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <learner-id>",
		Short: "Print the weekly progress grid of a learner",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(ctx context.Context, b backend, out io.Writer, args []string) error {
			view, err := b.Progress(ctx, args[0])
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return writeJSON(out, view)
			}
			return renderProgress(out, view)
		}),
	}
}

func newCohortCmd(opts *rootOptions, with runWrapper) *cobra.Command {
	return &cobra.Command{
		Use:   "cohort <cohort-id>",
		Short: "Summarise progress and ladder position for every learner of a cohort",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(ctx context.Context, b backend, out io.Writer, args []string) error {
			overview, err := b.Cohort(ctx, args[0])
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return writeJSON(out, overview)
			}
			return renderCohort(out, overview)
		}),
	}
}

func newExportCmd(with runWrapper) *cobra.Command {
	var format string
	var target string

	cmd := &cobra.Command{
		Use:   "export <learner-id>",
		Short: "Write a learner's progress report as csv, pdf or xlsx",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(ctx context.Context, b backend, out io.Writer, args []string) error {
			parsed, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			file, err := b.Export(ctx, args[0], parsed)
			if err != nil {
				return err
			}
			if target == "" {
				target = file.Filename
			}
			if target == "-" {
				_, err = out.Write(file.Payload)
				return err
			}
			if err := writeFile(target, file.Payload); err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "wrote %s (%d bytes)\n", target, len(file.Payload))
			return err
		}),
	}
	cmd.Flags().StringVar(&format, "format", string(export.FormatCSV), "report format: csv, pdf or xlsx")
	cmd.Flags().StringVar(&target, "out", "", "destination file, '-' for stdout (default: generated filename)")
	return cmd
}

func newWarnCmd(opts *rootOptions, with runWrapper) *cobra.Command {
	warn := &cobra.Command{
		Use:   "warn",
		Short: "Manage the warning ladder",
	}

	var req dto.IssueWarningRequest
	var exceptionType string
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue the next warning for a non-compliant week",
		Args:  cobra.NoArgs,
		RunE: with(func(ctx context.Context, b backend, out io.Writer, _ []string) error {
			if exceptionType != "" {
				req.ExceptionType = &exceptionType
			}
			res, err := b.IssueWarning(ctx, req)
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return writeJSON(out, res)
			}
			return renderIssued(out, res)
		}),
	}
	issue.Flags().StringVar(&req.LearnerID, "learner", "", "learner id")
	issue.Flags().IntVar(&req.Week, "week", 0, "week number (1-10)")
	issue.Flags().StringVar(&req.Reason, "reason", "", "reason recorded on the letter")
	issue.Flags().StringVar(&req.FinalAction, "final-action", "", "terminal outcome when this issuance exhausts the ladder")
	issue.Flags().StringVar(&exceptionType, "exception-type", "", "exception recorded with the terminal outcome")
	issue.Flags().StringVar(&req.Notes, "notes", "", "notes recorded with the terminal outcome")
	_ = issue.MarkFlagRequired("learner")
	_ = issue.MarkFlagRequired("week")
	_ = issue.MarkFlagRequired("reason")

	cancel := &cobra.Command{
		Use:   "cancel <warning-id>",
		Short: "Cancel an active warning",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(ctx context.Context, b backend, out io.Writer, args []string) error {
			res, err := b.CancelWarning(ctx, args[0])
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return writeJSON(out, res)
			}
			state := "cancelled"
			if !res.Changed {
				state = "already cancelled"
			}
			_, err = fmt.Fprintf(out, "warning %s (level %d, week %d) %s\n", res.Warning.ID, res.Warning.Level, res.Warning.WeekNumber, state)
			if err == nil && res.Degraded {
				_, err = fmt.Fprintln(out, "audit entry queued for retry")
			}
			return err
		}),
	}

	list := &cobra.Command{
		Use:   "list <learner-id>",
		Short: "List every warning of a learner",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(ctx context.Context, b backend, out io.Writer, args []string) error {
			warnings, err := b.ListWarnings(ctx, args[0])
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return writeJSON(out, warnings)
			}
			return renderWarnings(out, warnings)
		}),
	}

	warn.AddCommand(issue, cancel, list)
	return warn
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderBlocks(out io.Writer, blocks *dto.UnitBlocks) error {
	fmt.Fprintf(out, "%s %s (pages %d-%d, %s half)\n", blocks.Unit.Code, blocks.Unit.Name, blocks.Unit.StartPage, blocks.Unit.EndPage, blocks.Unit.Half)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WEEK\tCODE\tPAGE")
	for _, block := range blocks.Blocks {
		fmt.Fprintf(tw, "%d\t%s\t%d\n", block.Week, block.Code, block.Page)
	}
	return tw.Flush()
}

func renderProgress(out io.Writer, view *dto.LearnerProgress) error {
	name := view.LearnerName
	if name == "" {
		name = view.LearnerID
	}
	if view.Unit == nil {
		fmt.Fprintf(out, "%s has no confirmed unit\n", name)
		return nil
	}
	fmt.Fprintf(out, "%s on %s: %d/%d blocks (%d%%)\n", name, view.Unit.Code, view.Summary.Completed, view.Summary.Total, view.Summary.Percentage)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WEEK\tBLOCKS\tDONE\tWARNING")
	for _, week := range view.WeeklyStatus {
		marks := make([]string, 0, len(week.Blocks))
		for _, block := range week.Blocks {
			mark := "."
			if block.Completed {
				mark = "x"
			}
			marks = append(marks, block.Code+":"+mark)
		}
		warning := "-"
		if week.Warning != nil {
			warning = fmt.Sprintf("level %d", week.Warning.Level)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d/%d\t%s\n", week.Week, strings.Join(marks, " "), week.CompletedCount, week.TotalUnits, warning)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if view.WarningSummary.Blacklisted {
		_, err := fmt.Fprintln(out, "learner is blacklisted")
		return err
	}
	return nil
}

func renderCohort(out io.Writer, overview *dto.CohortProgress) error {
	fmt.Fprintf(out, "cohort %s: %d learners, average %d%%, %d blacklisted\n", overview.CohortID, len(overview.Learners), overview.AveragePercentage, overview.BlacklistedCount)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LEARNER\tUNIT\tPERCENT\tWEEKS\tLEVEL\tBLACKLISTED")
	for _, row := range overview.Learners {
		unit := row.UnitCode
		if unit == "" {
			unit = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%t\n", row.LearnerName, unit, row.Summary.Percentage, row.CompletedWeeks, row.WarningLevel, row.Blacklisted)
	}
	return tw.Flush()
}

func renderIssued(out io.Writer, res *dto.WarningResponse) error {
	verb := "issued"
	if res.Replayed {
		verb = "already issued"
	}
	fmt.Fprintf(out, "%s level %d warning for learner %s week %d (id %s)\n", verb, res.Warning.Level, res.Warning.LearnerID, res.Warning.WeekNumber, res.Warning.ID)
	if res.Escalation != nil {
		fmt.Fprintf(out, "ladder exhausted: %s after %d warnings\n", res.Escalation.FinalAction, res.Escalation.TotalWarnings)
	}
	if res.Degraded {
		fmt.Fprintln(out, "audit entry queued for retry")
	}
	return nil
}

func renderWarnings(out io.Writer, warnings []models.WarningLetter) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLEVEL\tWEEK\tSTATUS\tISSUED\tREASON")
	for _, w := range warnings {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\n", w.ID, w.Level, w.WeekNumber, w.Status, w.IssuedAt.Format("2006-01-02"), w.Reason)
	}
	return tw.Flush()
}
