package errors

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// FormatForCLI renders err for the terminal: the message, then the path,
// hint and code of a structured error on indented lines. Plain errors are
// reported as internal.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}
	ae, ok := As(err)
	if !ok {
		ae = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", ae.Message)
	if p := ae.Path(); p != "" {
		fmt.Fprintf(&sb, "  Path: %s\n", p)
	}
	if ae.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", ae.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", ae.Code)
	return sb.String()
}

// LogAttrs returns slog attributes describing err. Structured errors
// contribute their code, category, cause and details; any other error is a
// single "error" attribute.
func LogAttrs(err error) []slog.Attr {
	if err == nil {
		return nil
	}
	ae, ok := As(err)
	if !ok {
		return []slog.Attr{slog.String("error", err.Error())}
	}

	attrs := []slog.Attr{
		slog.String("error", ae.Message),
		slog.String("code", ae.Code),
		slog.String("category", string(ae.Category)),
	}
	if ae.Cause != nil {
		attrs = append(attrs, slog.String("cause", ae.Cause.Error()))
	}
	keys := make([]string, 0, len(ae.Details))
	for k := range ae.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, ae.Details[k]))
	}
	return attrs
}
