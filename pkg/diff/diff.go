// Package diff renders line-level differences between two configurations for
// human review. The reconciliation engine never consults it.
package diff

import (
	"fmt"
	"iter"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/fsconf-network/fsconf/pkg/config"
)

// DefaultContext is the number of unchanged lines shown around each change.
const DefaultContext = 3

// Op marks how a line of a hunk relates the two inputs.
type Op byte

const (
	OpEqual  Op = ' '
	OpRemove Op = '-'
	OpAdd    Op = '+'
)

// Line is one line of a hunk.
type Line struct {
	Op   Op
	Text string
}

// Hunk is a contiguous group of changes with surrounding context. Starts are
// zero-based line indexes; counts are line counts.
type Hunk struct {
	FromStart, FromCount int
	ToStart, ToCount     int
	Lines                []Line
}

// Header returns the unified-diff "@@" header for the hunk (one-based).
func (h Hunk) Header() string {
	return fmt.Sprintf("@@ -%s +%s @@", formatRange(h.FromStart, h.FromCount), formatRange(h.ToStart, h.ToCount))
}

// Removed returns the lines present only in the "from" side.
func (h Hunk) Removed() []string {
	return h.filter(OpRemove)
}

// Added returns the lines present only in the "to" side.
func (h Hunk) Added() []string {
	return h.filter(OpAdd)
}

func (h Hunk) filter(op Op) []string {
	var out []string
	for _, l := range h.Lines {
		if l.Op == op {
			out = append(out, l.Text)
		}
	}
	return out
}

func formatRange(start, count int) string {
	begin := start + 1
	if count == 0 {
		begin--
	}
	if count == 1 {
		return fmt.Sprintf("%d", begin)
	}
	return fmt.Sprintf("%d,%d", begin, count)
}

// Diff returns the hunks turning running into candidate. The sequence is lazy
// and may be ranged over any number of times; each pass recomputes from the
// inputs, which are not modified.
func Diff(running, candidate config.ConfigText) iter.Seq[Hunk] {
	return DiffContext(running, candidate, DefaultContext)
}

// DiffContext is Diff with a configurable amount of context.
func DiffContext(running, candidate config.ConfigText, context int) iter.Seq[Hunk] {
	return func(yield func(Hunk) bool) {
		// Autojunk would treat repeated lines such as " shutdown" as junk
		// in large configs and break the alignment.
		m := difflib.NewMatcherWithJunk(running, candidate, false, nil)
		for _, group := range m.GetGroupedOpCodes(context) {
			h, ok := buildHunk(group, running, candidate)
			if !ok {
				continue
			}
			if !yield(h) {
				return
			}
		}
	}
}

func buildHunk(group []difflib.OpCode, a, b []string) (Hunk, bool) {
	changed := false
	first, last := group[0], group[len(group)-1]
	h := Hunk{
		FromStart: first.I1,
		FromCount: last.I2 - first.I1,
		ToStart:   first.J1,
		ToCount:   last.J2 - first.J1,
	}
	for _, op := range group {
		switch op.Tag {
		case 'e':
			for _, l := range a[op.I1:op.I2] {
				h.Lines = append(h.Lines, Line{Op: OpEqual, Text: l})
			}
		case 'd', 'r', 'i':
			changed = true
			for _, l := range a[op.I1:op.I2] {
				h.Lines = append(h.Lines, Line{Op: OpRemove, Text: l})
			}
			for _, l := range b[op.J1:op.J2] {
				h.Lines = append(h.Lines, Line{Op: OpAdd, Text: l})
			}
		}
	}
	return h, changed
}

// Collect drains a hunk sequence into a slice.
func Collect(seq iter.Seq[Hunk]) []Hunk {
	var out []Hunk
	for h := range seq {
		out = append(out, h)
	}
	return out
}

// Unified renders the classic unified diff text. An empty string means the
// inputs are identical.
func Unified(running, candidate config.ConfigText, fromName, toName string) (string, error) {
	ud := difflib.UnifiedDiff{
		A:        splitLines(running),
		B:        splitLines(candidate),
		FromFile: fromName,
		ToFile:   toName,
		Context:  DefaultContext,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return "", fmt.Errorf("rendering diff: %w", err)
	}
	return text, nil
}

func splitLines(c config.ConfigText) []string {
	if len(c) == 0 {
		return nil
	}
	return difflib.SplitLines(strings.TrimSuffix(c.String(), "\n"))
}

// Format renders hunks without file headers, one "@@" block per hunk.
func Format(seq iter.Seq[Hunk]) string {
	var sb strings.Builder
	for h := range seq {
		sb.WriteString(h.Header())
		sb.WriteByte('\n')
		for _, l := range h.Lines {
			sb.WriteByte(byte(l.Op))
			sb.WriteString(l.Text)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
