package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liliang-cn/doclens/internal/domain"
	"github.com/liliang-cn/doclens/internal/service"
)

const chatHelp = `Commands:
  :add <pdf>...   select files
  :rm <n>         unselect file n
  :files          list selected files
  :clear          unselect all files
  :upload         upload selected files
  :reset          start a new session
  :status         show session status
  :help           show this help
  :quit           leave
Anything else is sent as a question.`

func newChatCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [pdf...]",
		Short: "Interactive session: select PDFs, upload, ask",
		Long: `Start an interactive session. Files given as arguments are selected
right away; type :upload to send them, then ask questions.

` + chatHelp,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags, true)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			a.orchestrator.Start(cmd.Context())
			out := cmd.OutOrStdout()
			if len(args) > 0 {
				if err := addPaths(a.orchestrator, args, out); err != nil {
					printError(out, "%v", err)
				}
			}
			return runChat(cmd.Context(), a.orchestrator, cmd.InOrStdin(), out)
		},
	}
}

// runChat reads commands and questions line by line until :quit or EOF
func runChat(ctx context.Context, o *service.Orchestrator, in io.Reader, out io.Writer) error {
	stop := watchNotifications(o, out)
	defer stop()

	printStep(out, "Session %s (type :help for commands)", o.SessionID())

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, ":") {
			chatAsk(ctx, o, line, out)
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case ":quit", ":q", ":exit":
			return nil
		case ":help", ":h":
			fmt.Fprintln(out, chatHelp)
		case ":add":
			if len(fields) < 2 {
				printWarning(out, "usage: :add <pdf>...")
				continue
			}
			if err := addPaths(o, fields[1:], out); err != nil {
				printError(out, "%v", err)
				continue
			}
			st := o.Snapshot()
			printPending(out, st.PendingFiles, st.PendingSize)
		case ":rm":
			n, err := strconv.Atoi(strings.Join(fields[1:], ""))
			if err != nil {
				printWarning(out, "usage: :rm <n>")
				continue
			}
			removed, err := o.RemoveFile(n - 1)
			if err != nil {
				printError(out, "no file %d", n)
				continue
			}
			printStep(out, "Removed %s", removed.Name)
		case ":files":
			st := o.Snapshot()
			printPending(out, st.PendingFiles, st.PendingSize)
		case ":clear":
			o.ClearFiles()
			printStep(out, "Selection cleared")
		case ":upload":
			chatUpload(ctx, o, out)
		case ":reset":
			o.Reset(ctx)
			printStep(out, "Session %s", o.SessionID())
		case ":status":
			printSessionStatus(out, o.Snapshot())
		default:
			printWarning(out, "unknown command %s (type :help)", fields[0])
		}
	}
}

func chatUpload(ctx context.Context, o *service.Orchestrator, out io.Writer) {
	st := o.Snapshot()
	if len(st.PendingFiles) == 0 {
		printWarning(out, "Select files first with :add")
		return
	}
	printStep(out, "Uploading %d file(s) (%s)", len(st.PendingFiles), formatSize(st.PendingSize))
	if err := o.SubmitUpload(ctx); err != nil && !domain.IsGatewayFailure(err) {
		printError(out, "%v", err)
	}
}

func chatAsk(ctx context.Context, o *service.Orchestrator, question string, out io.Writer) {
	err := o.Ask(ctx, question)
	switch {
	case err == nil:
		msgs := o.Snapshot().Session.Messages
		printMessage(out, msgs[len(msgs)-1])
	case errors.Is(err, domain.ErrNoDocument):
		printWarning(out, "Upload a document first (:add, then :upload)")
	case domain.IsGatewayFailure(err):
		// Already shown as a notification
	default:
		printError(out, "%v", err)
	}
}

func printSessionStatus(w io.Writer, st service.State) {
	printStatus(w, "Session", "%s", st.Session.ID)
	printStatus(w, "Backend", "%s", st.Health)
	if st.Session.IsDocumentUploaded && st.Session.ChunksCount != nil {
		printStatus(w, "Documents", "uploaded, %d chunks", *st.Session.ChunksCount)
	} else {
		printStatus(w, "Documents", "none uploaded")
	}
	printStatus(w, "Messages", "%d", len(st.Session.Messages))
	printStatus(w, "Selected", "%d file(s), %s", len(st.PendingFiles), formatSize(st.PendingSize))
}
