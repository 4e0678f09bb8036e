// Package policy redacts disallowed public-figure references from free text
// before it reaches the image model.
//
// Matching is purely textual: a case-insensitive substring search against a
// fixed denylist. There is no entity recognition or disambiguation.
package policy

import (
	"regexp"
	"strings"
)

// Placeholder replaces every denylisted name found in a request.
const Placeholder = "a person"

// DefaultDenylist is the shipped list of public figures. It is intentionally
// non-exhaustive; deployments extend it through configuration.
var DefaultDenylist = []string{
	"elon musk",
	"donald trump",
	"joe biden",
	"barack obama",
	"taylor swift",
	"kim kardashian",
	"mark zuckerberg",
	"jeff bezos",
	"bill gates",
	"oprah winfrey",
	"narendra modi",
	"vladimir putin",
}

// Result is the outcome of filtering one piece of text.
type Result struct {
	// Matches lists every denylist entry found in the input, lower-cased,
	// in denylist order.
	Matches []string
	// Text is the input with each match replaced by Placeholder.
	Text string
}

// Filter holds a compiled denylist. A Filter is immutable and safe for
// concurrent use.
type Filter struct {
	names    []string
	patterns []*regexp.Regexp
}

// NewFilter compiles the denylist. Blank and duplicate entries are dropped;
// order is otherwise preserved since it decides replacement order.
func NewFilter(denylist []string) *Filter {
	f := &Filter{}
	seen := make(map[string]bool, len(denylist))
	for _, raw := range denylist {
		name := strings.ToLower(strings.Join(strings.Fields(raw), " "))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		f.names = append(f.names, name)
		f.patterns = append(f.patterns, regexp.MustCompile("(?i)"+regexp.QuoteMeta(name)))
	}
	return f
}

// Default returns a Filter over DefaultDenylist.
func Default() *Filter {
	return NewFilter(DefaultDenylist)
}

// Names returns the normalized denylist.
func (f *Filter) Names() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Apply reports which denylisted names occur in text and returns a redacted copy.
// Every entry is detected against the original text, then replaced in denylist
// order, so an entry that overlaps an earlier, longer one is still reported even
// if the earlier replacement already removed it.
func (f *Filter) Apply(text string) Result {
	lower := strings.ToLower(text)
	res := Result{Text: text}
	for i, name := range f.names {
		if !strings.Contains(lower, name) {
			continue
		}
		res.Matches = append(res.Matches, name)
		res.Text = f.patterns[i].ReplaceAllLiteralString(res.Text, Placeholder)
	}
	return res
}
