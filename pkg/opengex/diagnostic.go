package opengex

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DiagnosticKind classifies a recoverable load problem.
type DiagnosticKind int

const (
	DiagSourceNotFound      DiagnosticKind = iota // Input could not be opened or read
	DiagMalformedLine                             // Keyword line missing expected tokens
	DiagUnresolvedReference                       // Node ObjectRef matches no object
)

// String returns a human-readable diagnostic kind.
func (k DiagnosticKind) String() string {
	switch k {
	case DiagSourceNotFound:
		return "SourceNotFound"
	case DiagMalformedLine:
		return "MalformedLine"
	case DiagUnresolvedReference:
		return "UnresolvedReference"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Diagnostic is one recoverable problem found while loading. It satisfies
// error and unwraps to the matching Err* sentinel.
type Diagnostic struct {
	Kind    DiagnosticKind
	Line    int    // 1-based source line, 0 when not tied to a line
	Keyword string // Head keyword of the offending line
	Node    string // Node name for unresolved references
	Path    string // Source path for SourceNotFound
	Message string
	Err     error // Underlying I/O error, if any
}

func (d Diagnostic) Error() string {
	switch d.Kind {
	case DiagSourceNotFound:
		if d.Err != nil {
			return fmt.Sprintf("%s: %s: %v", ErrSourceNotFound, d.Path, d.Err)
		}
		return fmt.Sprintf("%s: %s", ErrSourceNotFound, d.Path)
	case DiagMalformedLine:
		return fmt.Sprintf("line %d: %s: %s: %s", d.Line, ErrMalformedLine, d.Keyword, d.Message)
	case DiagUnresolvedReference:
		return fmt.Sprintf("%s: node %q: %s", ErrUnresolvedReference, d.Node, d.Message)
	default:
		return d.Message
	}
}

// Unwrap returns the sentinel for the diagnostic kind, plus the I/O cause.
func (d Diagnostic) Unwrap() []error {
	var sentinel error
	switch d.Kind {
	case DiagSourceNotFound:
		sentinel = ErrSourceNotFound
	case DiagMalformedLine:
		sentinel = ErrMalformedLine
	case DiagUnresolvedReference:
		sentinel = ErrUnresolvedReference
	}
	errs := []error{sentinel}
	if d.Err != nil {
		errs = append(errs, d.Err)
	}
	return errs
}

// diagnostics accumulates diagnostics and mirrors each one to the logger.
type diagnostics struct {
	list []Diagnostic
	log  *zap.Logger
}

func (d *diagnostics) add(diag Diagnostic) {
	d.list = append(d.list, diag)
	d.log.Warn("opengex diagnostic",
		zap.Stringer("kind", diag.Kind),
		zap.Int("line", diag.Line),
		zap.String("keyword", diag.Keyword),
		zap.String("node", diag.Node),
		zap.String("message", diag.Message))
}

func (d *diagnostics) malformed(l line, keyword, format string, args ...any) {
	d.add(Diagnostic{
		Kind:    DiagMalformedLine,
		Line:    l.num,
		Keyword: keyword,
		Message: fmt.Sprintf(format, args...),
	})
}

// combine folds diagnostics into a single error, nil when there are none.
func combine(list []Diagnostic) error {
	var err error
	for _, d := range list {
		err = multierr.Append(err, d)
	}
	return err
}
