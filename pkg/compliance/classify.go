package compliance

import (
	"github.com/pmezard/go-difflib/difflib"

	"github.com/fsconf-network/fsconf/pkg/config"
)

// SectionReport is the comparison result for one feature section. Extra lines
// are present only in running, Missing lines only in candidate; both keep
// their original order and parent header.
type SectionReport struct {
	Section   FeatureSection `json:"section"`
	Compliant bool           `json:"compliant"`
	Extra     []config.Line  `json:"extra,omitempty"`
	Missing   []config.Line  `json:"missing,omitempty"`
}

// Report holds one SectionReport per catalogue section, in catalogue order.
type Report []SectionReport

// Compliant reports whether every section is compliant.
func (r Report) Compliant() bool {
	for _, s := range r {
		if !s.Compliant {
			return false
		}
	}
	return true
}

// Get returns the report of the named section.
func (r Report) Get(name string) (SectionReport, bool) {
	for _, s := range r {
		if s.Section.Name == name {
			return s, true
		}
	}
	return SectionReport{}, false
}

// Counts returns the total number of extra and missing lines.
func (r Report) Counts() (extra, missing int) {
	for _, s := range r {
		extra += len(s.Extra)
		missing += len(s.Missing)
	}
	return extra, missing
}

// Classify buckets running and candidate into the catalogue's sections and
// compares each section. It has no side effects and is deterministic.
func Classify(catalogue Catalogue, running, candidate config.ConfigText) Report {
	have := partition(catalogue, running)
	want := partition(catalogue, candidate)

	report := make(Report, 0, len(catalogue))
	for _, s := range catalogue {
		var extra, missing []config.Line
		if s.Ordered {
			extra, missing = compareOrdered(have[s.Name], want[s.Name])
		} else {
			extra, missing = compareUnordered(have[s.Name], want[s.Name])
		}
		report = append(report, SectionReport{
			Section:   s,
			Compliant: len(extra) == 0 && len(missing) == 0,
			Extra:     extra,
			Missing:   missing,
		})
	}
	return report
}

func partition(catalogue Catalogue, text config.ConfigText) map[string][]config.Line {
	out := make(map[string][]config.Line)
	for _, b := range text.Blocks() {
		name := catalogue.SectionFor(b.Header)
		out[name] = append(out[name], b.Lines()...)
	}
	return out
}

func keys(lines []config.Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Key()
	}
	return out
}

// compareOrdered aligns the two sequences on their longest common
// subsequence; whatever falls outside it is extra or missing.
func compareOrdered(have, want []config.Line) (extra, missing []config.Line) {
	m := difflib.NewMatcherWithJunk(keys(have), keys(want), false, nil)
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'd':
			extra = append(extra, have[op.I1:op.I2]...)
		case 'i':
			missing = append(missing, want[op.J1:op.J2]...)
		case 'r':
			extra = append(extra, have[op.I1:op.I2]...)
			missing = append(missing, want[op.J1:op.J2]...)
		}
	}
	return extra, missing
}

// compareUnordered is a multiset difference that keeps each side's order.
func compareUnordered(have, want []config.Line) (extra, missing []config.Line) {
	count := func(lines []config.Line) map[string]int {
		m := make(map[string]int, len(lines))
		for _, l := range lines {
			m[l.Key()]++
		}
		return m
	}
	wantCount, haveCount := count(want), count(have)

	for _, l := range have {
		if wantCount[l.Key()] > 0 {
			wantCount[l.Key()]--
			continue
		}
		extra = append(extra, l)
	}
	for _, l := range want {
		if haveCount[l.Key()] > 0 {
			haveCount[l.Key()]--
			continue
		}
		missing = append(missing, l)
	}
	return extra, missing
}
