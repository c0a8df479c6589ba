// Package unfuscate resolves obfuscated stack traces against a mapping store.
package unfuscate

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"unfuscator/internal/mapping"
	"unfuscator/internal/signature"
	"unfuscator/internal/version"
)

// DefaultConcurrency bounds the store lookups in flight for one trace.
const DefaultConcurrency = 8

// Frame is the result for one line of a trace.
type Frame struct {
	Line         string              `json:"line" xml:"Line" yaml:"line"`
	Input        signature.Signature `json:"input" xml:"InputStackLine" yaml:"input"`
	Alternatives []mapping.Record    `json:"alternatives" xml:"Alternatives>Record" yaml:"alternatives"`
}

// Best returns the highest ranked alternative.
func (f Frame) Best() (mapping.Record, bool) {
	if len(f.Alternatives) == 0 {
		return mapping.Record{}, false
	}
	return f.Alternatives[0], true
}

// Result holds one Frame per non-empty trace line, in trace order.
type Result struct {
	Frames []Frame `json:"frames" xml:"StackFrames>StackFrame" yaml:"frames"`
}

// Unresolved counts the frames with no alternative.
func (r *Result) Unresolved() int {
	n := 0
	for _, f := range r.Frames {
		if len(f.Alternatives) == 0 {
			n++
		}
	}
	return n
}

// Unfuscator resolves traces. It is safe for concurrent use when its store is.
type Unfuscator struct {
	store       mapping.Store
	logger      *slog.Logger
	concurrency int
}

// Option configures an Unfuscator.
type Option func(*Unfuscator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(u *Unfuscator) {
		u.logger = logger
	}
}

// WithConcurrency sets how many lookups of one trace may run at once.
// Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(u *Unfuscator) {
		if n > 0 {
			u.concurrency = n
		}
	}
}

// New returns an Unfuscator reading from store.
func New(store mapping.Store, opts ...Option) *Unfuscator {
	u := &Unfuscator{
		store:       store,
		logger:      slog.Default(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Line is a non-empty, trimmed trace line and its 1-based position in the
// input.
type Line struct {
	Number int
	Text   string
}

// Lines splits a trace on line breaks, trims every line and drops the empty
// ones.
func Lines(trace string) []Line {
	var out []Line
	n := 0
	for text := range strings.SplitSeq(trace, "\n") {
		n++
		if text = strings.TrimSpace(text); text != "" {
			out = append(out, Line{Number: n, Text: text})
		}
	}
	return out
}

// LineError reports a trace line that could not be parsed.
type LineError struct {
	Line int    // 1-based line number in the trace
	Text string // trimmed line
	Err  error  // usually a *signature.ParseError
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Unfuscate parses every line of trace as a stack frame and looks its
// signature up in the store. Alternatives are ranked by how closely their
// version matches target (which may be nil); records with equal scores keep
// store order. Any line that fails to parse fails the whole trace with an
// *LineError wrapping the *signature.ParseError.
func (u *Unfuscator) Unfuscate(ctx context.Context, trace string, target *version.Version) (*Result, error) {
	start := time.Now()
	lines := Lines(trace)

	frames := make([]Frame, len(lines))
	for i, line := range lines {
		sig, err := signature.ParseStackTraceLine(line.Text)
		if err != nil {
			tracesTotal.WithLabelValues("parse_error").Inc()
			return nil, &LineError{Line: line.Number, Text: line.Text, Err: err}
		}
		frames[i] = Frame{Line: line.Text, Input: sig}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)
	for i := range frames {
		g.Go(func() error {
			key := frames[i].Input.String()
			records, err := u.store.Get(gctx, key)
			if err != nil {
				return fmt.Errorf("line %d: looking up %s: %w", lines[i].Number, key, err)
			}
			if records == nil {
				records = []mapping.Record{}
			}
			Rank(records, target)
			frames[i].Alternatives = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		tracesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	res := &Result{Frames: frames}
	unresolved := res.Unresolved()
	tracesTotal.WithLabelValues("ok").Inc()
	framesTotal.WithLabelValues("resolved").Add(float64(len(frames) - unresolved))
	framesTotal.WithLabelValues("unresolved").Add(float64(unresolved))
	traceDuration.Observe(time.Since(start).Seconds())

	u.logger.Debug("trace resolved",
		slog.Int("frames", len(frames)),
		slog.Int("unresolved", unresolved),
		slog.String("target", targetText(target)),
		slog.Duration("duration", time.Since(start)))
	return res, nil
}

// Rank sorts records by version similarity to target, best first, keeping
// the order of records with equal scores.
func Rank(records []mapping.Record, target *version.Version) {
	type scored struct {
		rec   mapping.Record
		score int
	}
	ranked := make([]scored, len(records))
	for i, r := range records {
		ranked[i] = scored{rec: r, score: version.Similarity(r.VersionNumber(), target)}
	}
	slices.SortStableFunc(ranked, func(a, b scored) int {
		return cmp.Compare(b.score, a.score)
	})
	for i, s := range ranked {
		records[i] = s.rec
	}
}

func targetText(v *version.Version) string {
	if v == nil {
		return ""
	}
	return v.String()
}
