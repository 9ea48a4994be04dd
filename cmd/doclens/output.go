package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/liliang-cn/doclens/internal/domain"
	"github.com/liliang-cn/doclens/internal/service"
)

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	warnColor    = color.New(color.FgYellow)
	stepColor    = color.New(color.FgCyan)
	labelColor   = color.New(color.Bold)
	userColor    = color.New(color.FgBlue, color.Bold)
	botColor     = color.New(color.FgMagenta, color.Bold)
)

func printSuccess(w io.Writer, format string, args ...any) {
	successColor.Fprintln(w, "✓ "+fmt.Sprintf(format, args...))
}

func printError(w io.Writer, format string, args ...any) {
	errorColor.Fprintln(w, "✗ "+fmt.Sprintf(format, args...))
}

func printWarning(w io.Writer, format string, args ...any) {
	warnColor.Fprintln(w, "⚠ "+fmt.Sprintf(format, args...))
}

func printStep(w io.Writer, format string, args ...any) {
	stepColor.Fprintln(w, "→ "+fmt.Sprintf(format, args...))
}

func printStatus(w io.Writer, label string, format string, args ...any) {
	fmt.Fprintf(w, "  %s %s\n", labelColor.Sprint(label+":"), fmt.Sprintf(format, args...))
}

func printMessage(w io.Writer, m domain.Message) {
	switch m.Role {
	case domain.RoleUser:
		fmt.Fprintf(w, "%s %s\n", userColor.Sprint("you:"), m.Content)
	default:
		fmt.Fprintf(w, "%s %s\n", botColor.Sprint("doclens:"), m.Content)
	}
}

func printNotification(w io.Writer, n domain.Notification) {
	if n.Kind == domain.NotifyError {
		printError(w, "%s", n.Message)
		return
	}
	printSuccess(w, "%s", n.Message)
}

func printPending(w io.Writer, files []domain.PendingFile, total int64) {
	if len(files) == 0 {
		fmt.Fprintln(w, "  (no files selected)")
		return
	}
	for i, f := range files {
		pages := ""
		if f.Pages > 0 {
			pages = fmt.Sprintf(", %d pages", f.Pages)
		}
		fmt.Fprintf(w, "  %d. %s (%s%s)\n", i+1, f.Name, formatSize(f.Size), pages)
	}
	printStatus(w, "Total", "%s", formatSize(total))
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// watchNotifications prints each new notification as the orchestrator
// raises it. Expiry is silent
func watchNotifications(o *service.Orchestrator, w io.Writer) (stop func()) {
	var mu sync.Mutex
	var last domain.Notification
	return o.Subscribe(func(s service.State) {
		if s.Notification == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if *s.Notification == last {
			return
		}
		last = *s.Notification
		printNotification(w, last)
	})
}
