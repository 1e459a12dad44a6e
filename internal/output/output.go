package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"callstack/internal/activity"
	"callstack/internal/domain"
	"callstack/internal/usecase"
)

const missing = "—"

type Formatter struct {
	w io.Writer
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

// State prints a one-line status for a presentation update.
func (f *Formatter) State(view usecase.View) {
	switch {
	case view.Recording && view.Partial != "":
		fmt.Fprintf(f.w, "🎙️  %s %s\n", view.Status, view.Partial)
	case view.Recording:
		fmt.Fprintf(f.w, "🎙️  %s\n", view.Status)
	case view.Busy:
		fmt.Fprintf(f.w, "⏳ %s\n", view.Status)
	}
}

// Result prints the outcome of a finished cycle.
func (f *Formatter) Result(view usecase.View) {
	if view.Error != "" {
		f.Error("Error: " + view.Error)
		return
	}
	fmt.Fprintf(f.w, "📝 Transcript: %s\n", orMissing(view.Transcript))
	if view.IntentType != "" {
		intent := view.IntentType
		if view.ProjectName != "" {
			intent += " (" + view.ProjectName + ")"
		}
		fmt.Fprintf(f.w, "🎯 Intent: %s\n", intent)
	}
	if view.ActionResult != "" {
		fmt.Fprintf(f.w, "✅ %s\n", view.ActionResult)
	}
	if view.Context != "" {
		fmt.Fprintf(f.w, "ℹ️  %s\n", view.Context)
	}
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "❌ %s\n", msg)
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "ℹ️  %s\n", msg)
}

func (f *Formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✅ %s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "⚠️  %s\n", msg)
}

func (f *Formatter) SetupCheck(name string, ok bool, detail string) {
	if ok {
		fmt.Fprintf(f.w, "  ✅ %s: %s\n", name, detail)
	} else {
		fmt.Fprintf(f.w, "  ❌ %s: %s\n", name, detail)
	}
}

func (f *Formatter) Dashboard(dashboard domain.Dashboard) {
	fmt.Fprintf(f.w, "📁 Projects:\n\n")
	if len(dashboard.Projects) == 0 {
		fmt.Fprintf(f.w, "  No projects yet\n")
	}
	for _, p := range dashboard.Projects {
		fmt.Fprintf(f.w, "  %s [%s] %d tasks: %d pending, %d in progress, %d completed\n",
			p.Name, orMissing(p.Status), p.TotalTasks, p.PendingTasks, p.InProgressTasks, p.CompletedTasks)
	}

	fmt.Fprintf(f.w, "\n📋 Tasks:\n\n")
	if len(dashboard.Tasks) == 0 {
		fmt.Fprintf(f.w, "  No tasks yet\n")
	}
	for _, task := range dashboard.Tasks {
		marker := ""
		if task.VoiceCommand != nil && *task.VoiceCommand != "" {
			marker = " 🎙️"
		}
		fmt.Fprintf(f.w, "  [%s] %s%s\n", task.Status, task.Description, marker)
	}
}

func (f *Formatter) History(sessions []domain.CallSession) {
	fmt.Fprintf(f.w, "📞 Call history:\n\n")
	if len(sessions) == 0 {
		fmt.Fprintf(f.w, "  No calls yet\n")
		return
	}
	for _, s := range sessions {
		fmt.Fprintf(f.w, "  %s  %s  %s\n", formatTime(s.StartedAt), s.Duration(), deref(s.PhoneNumber))
		fmt.Fprintf(f.w, "    Transcript: %s\n", deref(s.Transcript))
		fmt.Fprintf(f.w, "    Commands: %s\n", deref(s.CommandsExecuted))
	}
}

func (f *Formatter) Activity(entries []activity.Entry) {
	fmt.Fprintf(f.w, "🕘 Recent recordings:\n\n")
	if len(entries) == 0 {
		fmt.Fprintf(f.w, "  Nothing recorded\n")
		return
	}
	for _, e := range entries {
		detail := e.Transcript
		if e.FailureMessage != "" {
			detail = e.FailureMessage
		}
		fmt.Fprintf(f.w, "  %s  %-19s %s  %s\n", formatTime(e.FinishedAt), e.Outcome, formatDuration(e.FinishedAt.Sub(e.StartedAt)), orMissing(detail))
	}
}

func orMissing(value string) string {
	if strings.TrimSpace(value) == "" {
		return missing
	}
	return value
}

func deref(value *string) string {
	if value == nil {
		return missing
	}
	return orMissing(*value)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return missing
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
