package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/Aman-CERP/mosaicwatch/internal/watcher"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the status as its string form for JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// UnmarshalText parses the form written by MarshalText.
func (s *CheckStatus) UnmarshalText(text []byte) error {
	for _, st := range []CheckStatus{StatusPass, StatusWarn, StatusFail} {
		if strings.EqualFold(string(text), st.String()) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown check status %q", text)
}

// Scope says whether a check concerns one planned session or the machine.
type Scope string

const (
	ScopeSession Scope = "session"
	ScopeMachine Scope = "machine"
)

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Scope    Scope       `json:"scope,omitempty"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Summary is the overall verdict of a set of results.
type Summary string

const (
	SummaryReady    Summary = "ready"
	SummaryWarnings Summary = "ready_with_warnings"
	SummaryFailed   Summary = "failed"
)

// Target names the paths a session would use. Empty fields skip the checks
// that need them.
type Target struct {
	WatchedDir   string
	OutputPath   string
	DataDir      string
	DatabasePath string
	Strategy     watcher.Strategy
}

// Checker performs preflight validation checks.
type Checker struct {
	verbose bool
	output  io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose prints check details under each result.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets where PrintResults writes.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// New creates a Checker printing to stdout.
func New(opts ...Option) *Checker {
	c := &Checker{output: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs the session checks for the paths set in t, then the machine
// checks.
func (c *Checker) RunAll(ctx context.Context, t Target) []CheckResult {
	var session []CheckResult
	if t.WatchedDir != "" {
		session = append(session, c.CheckWatchedDir(t.WatchedDir))
	}
	if t.OutputPath != "" {
		session = append(session,
			c.CheckDiskSpace(t.OutputPath),
			c.CheckWritePermissions("output_dir", filepath.Dir(t.OutputPath)),
			c.CheckOutputLock(t.OutputPath))
	}

	var machine []CheckResult
	if t.DataDir != "" {
		machine = append(machine, c.CheckWritePermissions("data_dir", t.DataDir))
	}
	if t.DatabasePath != "" {
		machine = append(machine, c.CheckDatabase(ctx, t.DatabasePath))
	}
	machine = append(machine, c.CheckFileDescriptors())
	if t.Strategy != watcher.StrategyPolling {
		machine = append(machine, c.CheckInotifyWatches())
	}

	return append(withScope(ScopeSession, session), withScope(ScopeMachine, machine)...)
}

func withScope(scope Scope, results []CheckResult) []CheckResult {
	for i := range results {
		results[i].Scope = scope
	}
	return results
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	return c.SummaryStatus(results) == SummaryFailed
}

// SummaryStatus folds results into one verdict. An optional check that
// failed counts as a warning.
func (c *Checker) SummaryStatus(results []CheckResult) Summary {
	summary := SummaryReady
	for _, r := range results {
		switch {
		case r.IsCritical():
			return SummaryFailed
		case r.Status != StatusPass:
			summary = SummaryWarnings
		}
	}
	return summary
}

// PrintResults writes a report grouped by scope, followed by the verdict
// and the details of every problem.
func (c *Checker) PrintResults(results []CheckResult) {
	out := c.output
	_, _ = fmt.Fprintln(out, "mosaicwatch doctor")

	for _, scope := range []Scope{ScopeSession, ScopeMachine} {
		var rows []CheckResult
		for _, r := range results {
			if r.Scope == scope || (scope == ScopeMachine && r.Scope == "") {
				rows = append(rows, r)
			}
		}
		if len(rows) == 0 {
			continue
		}
		_, _ = fmt.Fprintf(out, "\n%s\n", strings.ToUpper(string(scope[:1]))+string(scope[1:]))
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, r := range rows {
			_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\n", r.Status, r.Name, r.Message)
			if c.verbose && r.Details != "" {
				_, _ = fmt.Fprintf(w, "  \t\t%s\n", r.Details)
			}
		}
		_ = w.Flush()
	}

	var errs, warns int
	var problems []CheckResult
	for _, r := range results {
		switch {
		case r.IsCritical():
			errs++
		case r.Status != StatusPass:
			warns++
		default:
			continue
		}
		problems = append(problems, r)
	}

	_, _ = fmt.Fprintf(out, "\nResult: %s (%d error(s), %d warning(s))\n",
		strings.ToUpper(string(c.SummaryStatus(results))), errs, warns)
	for _, r := range problems {
		_, _ = fmt.Fprintf(out, "  - %s: %s\n", r.Name, r.Message)
		if r.Details != "" && !c.verbose {
			_, _ = fmt.Fprintf(out, "    %s\n", r.Details)
		}
	}
}

// CheckWatchedDir checks that the watched directory exists and can be listed.
func (c *Checker) CheckWatchedDir(dir string) CheckResult {
	result := CheckResult{Name: "watched_dir", Required: true, Status: StatusFail}

	info, err := os.Stat(dir)
	switch {
	case err != nil:
		result.Message = fmt.Sprintf("%s does not exist", dir)
	case !info.IsDir():
		result.Message = fmt.Sprintf("%s is not a directory", dir)
	default:
		entries, err := os.ReadDir(dir)
		if err != nil {
			result.Message = fmt.Sprintf("cannot list %s: %v", dir, err)
			break
		}
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%s (%d entries)", dir, len(entries))
	}
	return result
}

// CheckWritePermissions creates and removes a scratch file in dir.
func (c *Checker) CheckWritePermissions(name, dir string) CheckResult {
	result := CheckResult{Name: name, Required: true, Details: dir}

	f, err := os.CreateTemp(dir, ".mosaicwatch-check-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Status = StatusPass
	result.Message = "writable"
	return result
}
