package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"resume-critique/internal/feedback"
	"resume-critique/internal/intake"
	"resume-critique/internal/pipeline"
	"resume-critique/internal/submissions"
)

func (rt *runtime) submitCommand() *cobra.Command {
	var company, title, description string
	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Run a resume through the full analysis pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			backend, err := rt.backend(cmd.Context())
			if err != nil {
				return err
			}

			out, err := backend.Submit(cmd.Context(), pipeline.Submission{
				Owner:          rt.owner(),
				FileName:       filepath.Base(args[0]),
				Document:       doc,
				CompanyName:    company,
				JobTitle:       title,
				JobDescription: description,
			}, intake.ModeSync)
			for _, step := range out.Progress {
				fmt.Fprintln(cmd.ErrOrStderr(), step.Status)
			}
			if err != nil {
				return err
			}
			if rt.jsonOutput() {
				return rt.printJSON(out.Record)
			}
			printRecord(rt, *out.Record)
			return nil
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "company name")
	cmd.Flags().StringVar(&title, "title", "", "job title")
	cmd.Flags().StringVar(&description, "description", "", "job description")
	return cmd
}

func (rt *runtime) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored submissions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := rt.backend(cmd.Context())
			if err != nil {
				return err
			}
			records, err := backend.List(cmd.Context(), rt.owner())
			if err != nil {
				return err
			}
			if rt.jsonOutput() {
				return rt.printJSON(records)
			}

			w := tabwriter.NewWriter(rt.opts.Out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tSCORE\tCOMPANY\tTITLE")
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", rec.ID, rec.Status, scoreText(rec), rec.CompanyName, rec.JobTitle)
			}
			return w.Flush()
		},
	}
}

func (rt *runtime) showCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one submission and its feedback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := rt.backend(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := backend.Get(cmd.Context(), rt.owner(), args[0])
			if errors.Is(err, intake.ErrNotFound) {
				return fmt.Errorf("submission %s not found", args[0])
			}
			if err != nil {
				return err
			}
			if rt.jsonOutput() {
				return rt.printJSON(rec)
			}
			printRecord(rt, rec)
			return nil
		},
	}
}

func (rt *runtime) wipeCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Delete every stored artifact and record of the owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				ok, err := rt.opts.Confirm(fmt.Sprintf("Delete all submissions of %s?", rt.owner()))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(rt.opts.Out, "aborted")
					return nil
				}
			}
			backend, err := rt.backend(cmd.Context())
			if err != nil {
				return err
			}
			report, err := backend.Wipe(cmd.Context(), rt.owner())
			if rt.jsonOutput() {
				if perr := rt.printJSON(report); perr != nil {
					return perr
				}
				return err
			}
			fmt.Fprintf(rt.opts.Out, "artifacts deleted: %d, already gone: %d, failed: %d, records flushed: %t\n",
				report.ArtifactsDeleted, report.AlreadyGone, len(report.Failed), report.RecordsFlushed)
			return err
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func scoreText(rec submissions.Record) string {
	switch {
	case rec.Feedback == nil:
		return "-"
	case rec.Feedback.IsRaw():
		return "raw"
	default:
		return fmt.Sprintf("%d", rec.Feedback.Structured.OverallScore)
	}
}

func printRecord(rt *runtime, rec submissions.Record) {
	out := rt.opts.Out
	fmt.Fprintf(out, "Submission %s (%s)\n", rec.ID, rec.Status)
	if rec.CompanyName != "" || rec.JobTitle != "" {
		fmt.Fprintf(out, "Target: %s at %s\n", rec.JobTitle, rec.CompanyName)
	}
	if rec.FailureReason != "" {
		fmt.Fprintf(out, "Failure: %s\n", rec.FailureReason)
	}
	switch {
	case rec.Feedback == nil:
		fmt.Fprintln(out, "Feedback: pending")
	case rec.Feedback.IsRaw():
		fmt.Fprintf(out, "Feedback (unstructured):\n%s\n", rec.Feedback.Raw)
	default:
		fb := rec.Feedback.Structured
		fmt.Fprintf(out, "Overall: %d (%s)\n", fb.OverallScore, feedback.BandFor(fb.OverallScore))
		fmt.Fprintf(out, "ATS: %d\n", fb.ATS.Score)
		for _, tip := range fb.ATS.Tips {
			fmt.Fprintf(out, "  [%s] %s\n", tip.Type, tip.Tip)
		}
		for _, c := range []struct {
			name  string
			score feedback.Score
		}{
			{"Tone & style", fb.ToneAndStyle.Score},
			{"Content", fb.Content.Score},
			{"Structure", fb.Structure.Score},
			{"Skills", fb.Skills.Score},
		} {
			fmt.Fprintf(out, "%s: %d\n", c.name, c.score)
		}
	}
}
