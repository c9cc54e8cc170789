// Package source defines source text and the cursor consumed by matchers.
package source

import (
	"bytes"
	"regexp"
	"unicode/utf8"
)

// Source is a named piece of expression text with a line index used for
// position reporting.
type Source struct {
	name          string
	content       []byte
	lineStarts    []int
	prevLineIndex int
}

func New(name string, content []byte) *Source {
	s := &Source{name: name, content: content, prevLineIndex: -1}
	lineCnt := bytes.Count(content, []byte("\n")) + 1
	s.lineStarts = make([]int, lineCnt)
	s.lineStarts[0] = 0
	j := 1
	for i := 0; i < len(content) && j < lineCnt; i++ {
		if content[i] == '\n' {
			s.lineStarts[j] = i + 1
			j++
		}
	}

	return s
}

func (s *Source) Name() string {
	return s.name
}

func (s *Source) Content() []byte {
	return s.content
}

func (s *Source) Len() int {
	return len(s.content)
}

func (s *Source) LineCol(pos int) (line, col int) {
	var lineIndex int
	if pos < 0 {
		pos = 0
		lineIndex = 0
	} else if pos >= len(s.content) {
		pos = len(s.content)
		lineIndex = len(s.lineStarts) - 1
	} else {
		lineIndex = s.findLineIndex(pos)
	}

	lineStart := s.lineStarts[lineIndex]
	return lineIndex + 1, utf8.RuneCount(s.content[lineStart:pos]) + 1
}

func (s *Source) Pos(line, col int) int {
	if line <= 0 || col <= 0 {
		return 0
	}

	l := len(s.content)
	if line > len(s.lineStarts) {
		return l
	}

	res := s.lineStarts[line-1] + col - 1
	if res > l {
		return l
	} else {
		return res
	}
}

func (s *Source) findLineIndex(pos int) int {
	if s.prevLineIndex >= 0 && s.lineStarts[s.prevLineIndex] <= pos {
		lineIndex := s.prevLineIndex
		last := len(s.lineStarts) - 1
		for lineIndex <= last && s.lineStarts[lineIndex] <= pos {
			lineIndex++
		}
		lineIndex--
		s.prevLineIndex = lineIndex
		return lineIndex
	}

	lineStart := 0
	leftIndex := 0
	rightIndex := len(s.lineStarts) - 1
	index := 0
	if s.prevLineIndex >= 0 {
		lineStart = s.lineStarts[s.prevLineIndex]
		rightIndex = s.prevLineIndex
	}
	for leftIndex < rightIndex {
		index = (leftIndex + rightIndex + 1) >> 1
		lineStart = s.lineStarts[index]
		if lineStart == pos {
			return index
		}

		if lineStart < pos {
			leftIndex = index
		} else {
			rightIndex = index - 1
			index = rightIndex
		}
	}
	s.prevLineIndex = index
	return index
}

// Pos is an immutable position within a Source, used for error reporting.
type Pos struct {
	src            *Source
	pos, line, col int
}

func NewPos(src *Source, pos int) Pos {
	res := Pos{src: src, pos: pos}
	if src != nil {
		res.line, res.col = src.LineCol(pos)
	}
	return res
}

func (p Pos) Source() *Source {
	return p.src
}

func (p Pos) Pos() int {
	return p.pos
}

func (p Pos) SourceName() string {
	if p.src == nil {
		return ""
	} else {
		return p.src.Name()
	}
}

func (p Pos) Line() int {
	return p.line
}

func (p Pos) Col() int {
	return p.col
}

// Range is a half-open [Start, End) span of byte offsets in a Source.
type Range struct {
	Start, End int
}

func (r Range) Len() int {
	return r.End - r.Start
}

// Cursor is a positional reader over one Source. It belongs to exactly one
// parse invocation; matching operations and SetPos are the only things that
// move it. The cursor also records the furthest position ever reached, which
// syntax errors report as the most likely point of failure.
type Cursor struct {
	source   *Source
	pos      int
	furthest int
}

func NewCursor(s *Source) *Cursor {
	return &Cursor{source: s}
}

func (c *Cursor) Source() *Source {
	return c.source
}

// Pos returns the current position. The result may be passed to SetPos to
// restore the cursor after a failed match attempt.
func (c *Cursor) Pos() int {
	return c.pos
}

func (c *Cursor) SetPos(pos int) {
	if pos < 0 {
		pos = 0
	} else if pos > c.source.Len() {
		pos = c.source.Len()
	}
	c.pos = pos
}

func (c *Cursor) AtEnd() bool {
	return c.pos >= c.source.Len()
}

// Furthest returns the highest position the cursor has ever occupied.
func (c *Cursor) Furthest() int {
	return c.furthest
}

// SourcePos returns the current position with resolved line and column.
func (c *Cursor) SourcePos() Pos {
	return NewPos(c.source, c.pos)
}

// FurthestPos returns the high-water mark with resolved line and column.
func (c *Cursor) FurthestPos() Pos {
	return NewPos(c.source, c.furthest)
}

func (c *Cursor) advance(size int) {
	c.pos += size
	if c.pos > c.furthest {
		c.furthest = c.pos
	}
}

// MatchLiteral matches text at the current position, advancing the cursor by
// its length on success. Does not move the cursor on failure.
func (c *Cursor) MatchLiteral(text string) (string, bool) {
	end := c.pos + len(text)
	if end > c.source.Len() {
		return "", false
	}

	if string(c.source.content[c.pos:end]) != text {
		return "", false
	}

	c.advance(len(text))
	return text, true
}

// MatchPattern matches re anchored at the current position, advancing the
// cursor by the consumed length on success. An empty match is a success that
// consumes nothing. Does not move the cursor on failure.
func (c *Cursor) MatchPattern(re *regexp.Regexp) (string, bool) {
	loc := re.FindIndex(c.source.content[c.pos:])
	if loc == nil || loc[0] != 0 {
		return "", false
	}

	text := string(c.source.content[c.pos : c.pos+loc[1]])
	c.advance(loc[1])
	return text, true
}

// RangeSince returns the span from a previously saved position to the
// current one.
func (c *Cursor) RangeSince(pos int) Range {
	return Range{pos, c.pos}
}

// Text extracts the raw text covered by r.
func (c *Cursor) Text(r Range) string {
	return string(c.source.content[r.Start:r.End])
}
