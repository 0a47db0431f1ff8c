// Package config models a device configuration as ordered CLI text lines.
//
// Position encodes nesting: a line with leading whitespace is a sub-statement
// of the nearest preceding unindented line.
//
//	interface eth1              <- top-level (Parent "")
//	 switchport access vlan 10  <- nested  (Parent "interface eth1")
package config

import (
	"strings"
)

// ConfigText is an ordered sequence of configuration lines. Once fetched it is
// treated as immutable; helpers return new slices.
type ConfigText []string

// Line is one statement together with the header of the block it belongs to.
type Line struct {
	Text   string `json:"text"`
	Parent string `json:"parent,omitempty"`
}

// Parse splits raw device output into a ConfigText. Trailing whitespace, blank
// lines, "!" comment lines and the terminating "end" are dropped; leading
// whitespace is kept because it carries nesting.
func Parse(raw string) ConfigText {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	var lines ConfigText
	for _, l := range strings.Split(raw, "\n") {
		l = strings.TrimRight(l, " \t\r")
		trimmed := strings.TrimSpace(l)
		if trimmed == "" || strings.HasPrefix(trimmed, "!") {
			continue
		}
		if l == "end" {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

// String joins the lines with newlines, terminating the last one.
func (c ConfigText) String() string {
	if len(c) == 0 {
		return ""
	}
	return strings.Join(c, "\n") + "\n"
}

// Lines returns the parented view of the configuration.
func (c ConfigText) Lines() []Line {
	out := make([]Line, 0, len(c))
	parent := ""
	for _, text := range c {
		if IsNested(text) {
			out = append(out, Line{Text: text, Parent: parent})
			continue
		}
		parent = text
		out = append(out, Line{Text: text})
	}
	return out
}

// Blocks groups the configuration into top-level blocks: each header line
// followed by its nested lines. Nested lines that appear before any header
// form a block with an empty header.
func (c ConfigText) Blocks() []Block {
	var blocks []Block
	for _, l := range c.Lines() {
		if l.Parent == "" && !IsNested(l.Text) {
			blocks = append(blocks, Block{Header: l.Text})
			continue
		}
		if len(blocks) == 0 {
			blocks = append(blocks, Block{})
		}
		last := &blocks[len(blocks)-1]
		last.Children = append(last.Children, l.Text)
	}
	return blocks
}

// Block is a top-level statement and its sub-statements.
type Block struct {
	Header   string
	Children []string
}

// Lines flattens the block back into parented lines.
func (b Block) Lines() []Line {
	out := make([]Line, 0, len(b.Children)+1)
	if b.Header != "" {
		out = append(out, Line{Text: b.Header})
	}
	for _, child := range b.Children {
		out = append(out, Line{Text: child, Parent: b.Header})
	}
	return out
}

// IsNested reports whether a line is a sub-statement (leading whitespace).
func IsNested(line string) bool {
	return len(line) > 0 && (line[0] == ' ' || line[0] == '\t')
}

// Statement returns the line without indentation.
func (l Line) Statement() string {
	return strings.TrimSpace(l.Text)
}

// Nested reports whether the line is a sub-statement of Parent.
func (l Line) Nested() bool {
	return IsNested(l.Text)
}

// Key identifies a line within its block; two lines with equal keys are the
// same statement in the same context.
func (l Line) Key() string {
	if l.Parent == "" {
		return l.Text
	}
	return l.Parent + "\x00" + l.Text
}

func (l Line) String() string {
	return l.Text
}

// Texts returns the Text of each line, in order.
func Texts(lines []Line) ConfigText {
	out := make(ConfigText, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	return out
}
