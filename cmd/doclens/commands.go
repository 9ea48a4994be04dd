package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/liliang-cn/doclens/internal/docfile"
	"github.com/liliang-cn/doclens/internal/domain"
	"github.com/liliang-cn/doclens/internal/service"
)

// --- health ---

func newHealthCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, true)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			out := cmd.OutOrStdout()
			health, err := a.gateway.CheckHealth(cmd.Context())
			if err != nil {
				printError(out, "Backend unavailable at %s", a.gateway.BaseURL())
				return err
			}

			printSuccess(out, "Backend reachable at %s", a.gateway.BaseURL())
			printStatus(out, "Status", "%s", health.Status)
			printStatus(out, "Version", "%s", health.Version)
			printStatus(out, "Model configured", "%t", health.ServiceConfigured)
			return nil
		},
	}
}

// --- ask ---

func newAskCmd(flags *globalFlags) *cobra.Command {
	var files []string

	cmd := &cobra.Command{
		Use:   "ask --file <pdf> [--file <pdf>...] <question>",
		Short: "Upload PDFs and ask one question about them",
		Long: `Upload PDFs as a new session, ask one question, print the answer.
The backend session is deleted afterwards.

Examples:
  doclens ask --file ./report.pdf "Summarize the report"
  doclens ask --file a.pdf --file b.pdf "How do the two documents differ?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(files) == 0 {
				return fmt.Errorf("at least one --file is required")
			}

			a, err := newApp(flags, true)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			return runAsk(cmd.Context(), a.orchestrator, files, strings.Join(args, " "), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "PDF file to upload (repeatable)")
	return cmd
}

func runAsk(ctx context.Context, o *service.Orchestrator, paths []string, question string, out io.Writer) error {
	stop := watchNotifications(o, out)
	defer stop()

	if err := addPaths(o, paths, out); err != nil {
		return err
	}

	printStep(out, "Uploading %d file(s)", len(o.Snapshot().PendingFiles))
	if err := o.SubmitUpload(ctx); err != nil {
		return shown(err)
	}

	if err := o.Ask(ctx, question); err != nil {
		return shown(err)
	}
	msgs := o.Snapshot().Session.Messages
	fmt.Fprintln(out, msgs[len(msgs)-1].Content)
	return nil
}

// addPaths loads files from disk and offers them to the pending set
func addPaths(o *service.Orchestrator, paths []string, out io.Writer) error {
	files, err := docfile.LoadAll(paths)
	if err != nil {
		return err
	}
	added := o.AddFiles(files...)
	if skipped := len(files) - added; skipped > 0 {
		printWarning(out, "Skipped %d file(s): not a PDF or already selected", skipped)
	}
	if added == 0 && len(o.Snapshot().PendingFiles) == 0 {
		return fmt.Errorf("%w: no PDF files selected", domain.ErrValidation)
	}
	return nil
}

// --- history ---

func newHistoryCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse archived sessions",
	}
	cmd.AddCommand(
		newHistoryListCmd(flags),
		newHistoryShowCmd(flags),
		newHistoryDeleteCmd(flags),
	)
	return cmd
}

func newHistoryListCmd(flags *globalFlags) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, true)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())
			if err := a.requireArchive(); err != nil {
				return err
			}

			sessions, err := a.history.ListSessions(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, sessions)
			}
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions archived yet.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tMESSAGES\tUPLOADS\tCHUNKS\tUPDATED")
			for _, s := range sessions {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n",
					s.ID, s.MessageCount, s.UploadCount, s.ChunksCount, s.UpdatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of sessions")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newHistoryShowCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show the transcript of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, true)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())
			if err := a.requireArchive(); err != nil {
				return err
			}

			transcript, err := a.history.GetTranscript(cmd.Context(), args[0])
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("session %s not found", args[0])
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, transcript)
			}

			printStatus(out, "Session", "%s", transcript.ID)
			printStatus(out, "Started", "%s", transcript.CreatedAt.Local().Format(time.DateTime))
			for _, u := range transcript.Uploads {
				names := make([]string, 0, len(u.Files))
				for _, f := range u.Files {
					names = append(names, f.Name)
				}
				printStatus(out, "Upload", "%s (%d chunks)", strings.Join(names, ", "), u.ChunksCount)
			}
			fmt.Fprintln(out)
			for _, m := range transcript.Messages {
				printMessage(out, m)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newHistoryDeleteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Remove a session from the archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, true)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())
			if err := a.requireArchive(); err != nil {
				return err
			}

			if err := a.history.DeleteSession(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return fmt.Errorf("session %s not found", args[0])
				}
				return err
			}
			printSuccess(cmd.OutOrStdout(), "Deleted session %s", args[0])
			return nil
		},
	}
}

// reportedError is a failure the user already saw as a notification
type reportedError struct {
	err error
}

func (e reportedError) Error() string { return e.err.Error() }

func (e reportedError) Unwrap() error { return e.err }

// shown marks gateway failures as reported; the orchestrator has already
// raised a notification for them
func shown(err error) error {
	if domain.IsGatewayFailure(err) {
		return reportedError{err: err}
	}
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
