package annotations

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// OutputFormatter formats events for human-readable display.
type OutputFormatter struct {
	useColor bool
	writer   io.Writer
	renderer *BindingRenderer
}

// NewOutputFormatter creates a formatter, enabling color when w is a
// terminal.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stdout
	}

	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isTerminal(f.Fd())
	}

	return &OutputFormatter{
		useColor: useColor,
		writer:   w,
		renderer: NewBindingRenderer(useColor),
	}
}

// Handle implements the Handler interface - prints events as they occur
func (f *OutputFormatter) Handle(event Event) {
	output := f.Format(event)
	if output != "" {
		fmt.Fprintln(f.writer, output)
	}
}

// Format converts an event to a human-readable string.
func (f *OutputFormatter) Format(event Event) string {
	latency := f.formatLatency(event.Latency)

	switch event.Name {
	case QueryInvoked:
		return fmt.Sprintf("%s Query: %s", latency, truncateQuery(fmt.Sprint(event.Data["query"])))

	case QueryComplete:
		if err, ok := event.Data["error"]; ok && err != nil {
			return fmt.Sprintf("%s %s Query failed: %v",
				latency,
				f.colorize("✗", color.FgRed),
				err)
		}
		return fmt.Sprintf("%s %s Query done with %s from %s.",
			latency,
			f.colorize("===", color.FgGreen),
			f.colorizeCount("bindings", intData(event, "bindings.count")),
			f.colorizeCount("facts", intData(event, "facts.count")))

	case ClauseStep:
		return fmt.Sprintf("%s %s depth %d: %s (%d unknowns, %d remaining)",
			latency,
			f.colorize("→", color.FgYellow),
			intData(event, "depth"),
			f.colorize(fmt.Sprint(event.Data["expression"]), color.FgCyan),
			intData(event, "unknowns"),
			intData(event, "remaining"))

	case ExpressionEvaluated:
		scan := fmt.Sprintf("Scan(%s %s)", event.Data["shape"], event.Data["index"])
		if f.useColor {
			scan = color.BlueString("Scan(") + color.CyanString("%s %s", event.Data["shape"], event.Data["index"]) + color.BlueString(")")
		}
		warn := ""
		if expensive, _ := event.Data["expensive"].(bool); expensive {
			warn = " " + f.colorize("⚠️ expensive", color.FgYellow)
		}
		vars, _ := event.Data["variables"].([]string)
		return fmt.Sprintf("%s %s %s → %s%s",
			latency,
			scan,
			event.Data["expression"],
			f.renderer.RenderBindings(vars, intData(event, "bindings.count")),
			warn)

	case TransactionApplied:
		return fmt.Sprintf("%s %s Transaction: %s, %s → %s",
			latency,
			f.colorize("===", color.FgGreen),
			f.colorizeCount("sets", intData(event, "sets.count")),
			f.colorizeCount("unsets", intData(event, "unsets.count")),
			f.colorizeCount("subscribers", intData(event, "subscribers.count")))

	case SubscriptionCreated, SubscriptionDestroyed:
		verb := "Subscribed"
		if event.Name == SubscriptionDestroyed {
			verb = "Unsubscribed"
		}
		return fmt.Sprintf("%s %s %v to %v",
			latency,
			verb,
			event.Data["subscriber"],
			event.Data["query.id"])

	case SubscriptionImpact:
		return fmt.Sprintf("%s Impact: %s, %s confirmed",
			latency,
			f.colorizeCount("candidates", intData(event, "candidates.count")),
			f.colorizeCount("subscribers", intData(event, "confirmed.count")))

	case ErrorBackend:
		return fmt.Sprintf("%s %s Backend error: %v",
			latency,
			f.colorize("✗", color.FgRed),
			event.Data["error"])

	default:
		// Generic format for unknown events
		return fmt.Sprintf("%s %s %v", latency, event.Name, event.Data)
	}
}

func intData(event Event, key string) int {
	n, _ := event.Data[key].(int)
	return n
}

// formatLatency formats a duration as [XXXms] or [XXXµs] with color coding.
func (f *OutputFormatter) formatLatency(d time.Duration) string {
	// Use microseconds for sub-millisecond durations
	if d < time.Millisecond {
		s := fmt.Sprintf("[%dµs]", d.Microseconds())
		if !f.useColor {
			return s
		}
		return color.GreenString(s)
	}

	ms := float64(d.Microseconds()) / 1000.0
	s := fmt.Sprintf("[%.1fms]", ms)

	if !f.useColor {
		return s
	}

	switch {
	case ms < 50:
		return color.GreenString(s)
	case ms < 200:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

// colorizeCount formats a count with a label, using color based on the label type.
func (f *OutputFormatter) colorizeCount(label string, count int) string {
	text := fmt.Sprintf("%d %s", count, label)

	if !f.useColor {
		return text
	}

	switch strings.ToLower(label) {
	case "bindings":
		return color.MagentaString(text)
	case "facts", "sets", "unsets":
		return color.BlueString(text)
	case "subscribers", "candidates":
		return color.CyanString(text)
	default:
		return text
	}
}

// colorize applies color if enabled.
func (f *OutputFormatter) colorize(text string, attrs ...color.Attribute) string {
	if !f.useColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

// truncateQuery shortens long queries for display.
func truncateQuery(query string) string {
	query = strings.Join(strings.Fields(query), " ")

	const maxLen = 80
	if len(query) <= maxLen {
		return query
	}
	return query[:maxLen-3] + "..."
}

// ConsoleHandler creates a handler that prints formatted events to w.
func ConsoleHandler(w io.Writer) Handler {
	return NewOutputFormatter(w).Handle
}

func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
