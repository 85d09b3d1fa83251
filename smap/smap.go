// Package smap parses JSR-045 source maps (SMAP), the SourceDebugExtension attribute
// compilers attach to classes generated from other languages.
//
// An SMAP describes one or more strata. Each stratum lists the source files of that
// view and a line section mapping source ("input") lines to Java ("output") lines:
//
//	SMAP
//	Hello_jsp.java          output file name
//	JSP                     default stratum
//	*S JSP
//	*F
//	+ 1 hello.jsp
//	web/hello.jsp
//	*L
//	1#1,5:10,2              input 1..5 of file 1 → output 10..19, two output lines each
//	*E
package smap

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// JavaStratum is the implicit stratum whose lines are the class file's own line table.
const JavaStratum = "Java"

var ErrMalformed = errors.New("malformed SMAP")

// SMAP is a parsed source map.
type SMAP struct {
	OutputFileName string
	DefaultStratum string
	Strata         map[string]*Stratum
}

// Stratum is one source-language view.
type Stratum struct {
	Name  string
	Files []FileInfo
	Lines []LineInfo
}

// FileInfo is one entry of a file section. Path is empty when the SMAP gives no
// explicit source path.
type FileInfo struct {
	ID   int
	Name string
	Path string
}

// LineInfo is one entry of a line section:
// InputStart#FileID,Repeat:OutputStart,Increment.
type LineInfo struct {
	InputStart  int
	FileID      int
	Repeat      int
	OutputStart int
	Increment   int
}

// Stratum returns the named stratum, or nil.
func (m *SMAP) Stratum(name string) *Stratum {
	if m == nil {
		return nil
	}
	return m.Strata[name]
}

// StratumNames lists the strata in the map plus the implicit Java stratum.
func (m *SMAP) StratumNames() []string {
	names := []string{JavaStratum}
	if m == nil {
		return names
	}
	for name := range m.Strata {
		if name != JavaStratum {
			names = append(names, name)
		}
	}
	return names
}

// File returns the file with the given id.
func (s *Stratum) File(id int) (FileInfo, bool) {
	for _, f := range s.Files {
		if f.ID == id {
			return f, true
		}
	}
	return FileInfo{}, false
}

// Map translates a Java line to a line of this stratum. The first matching line entry
// wins.
func (s *Stratum) Map(javaLine int) (FileInfo, int, bool) {
	for _, li := range s.Lines {
		input, ok := li.inputFor(javaLine)
		if !ok {
			continue
		}
		file, ok := s.File(li.FileID)
		if !ok {
			continue
		}
		return file, input, true
	}
	return FileInfo{}, 0, false
}

func (li LineInfo) inputFor(output int) (int, bool) {
	if output < li.OutputStart {
		return 0, false
	}
	if li.Increment == 0 {
		if output == li.OutputStart {
			return li.InputStart, true
		}
		return 0, false
	}
	offset := (output - li.OutputStart) / li.Increment
	if offset >= li.Repeat {
		return 0, false
	}
	return li.InputStart + offset, true
}

type parser struct {
	lines []string
	pos   int
}

func (p *parser) next() (string, bool) {
	if p.pos >= len(p.lines) {
		return "", false
	}
	line := p.lines[p.pos]
	p.pos++
	return line, true
}

func (p *parser) peek() (string, bool) {
	if p.pos >= len(p.lines) {
		return "", false
	}
	return p.lines[p.pos], true
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrMalformed, p.pos, fmt.Sprintf(format, args...))
}

// Parse reads an SMAP. Vendor sections and embedded source maps are skipped.
func Parse(text string) (*SMAP, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	p := &parser{lines: strings.Split(text, "\n")}

	header, _ := p.next()
	if strings.TrimSpace(header) != "SMAP" {
		return nil, p.errorf("missing SMAP header")
	}
	out, ok := p.next()
	if !ok {
		return nil, p.errorf("missing output file name")
	}
	def, ok := p.next()
	if !ok {
		return nil, p.errorf("missing default stratum")
	}

	m := &SMAP{
		OutputFileName: strings.TrimSpace(out),
		DefaultStratum: strings.TrimSpace(def),
		Strata:         make(map[string]*Stratum),
	}

	var cur *Stratum
	for {
		line, ok := p.next()
		if !ok {
			return nil, p.errorf("missing *E")
		}
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "*") {
			return nil, p.errorf("expected section header, got %q", line)
		}
		section := strings.TrimSpace(line[1:])
		kind, arg, _ := strings.Cut(section, " ")
		arg = strings.TrimSpace(arg)

		switch kind {
		case "E":
			if m.Strata[m.DefaultStratum] == nil && m.DefaultStratum != JavaStratum {
				return nil, p.errorf("default stratum %q not defined", m.DefaultStratum)
			}
			return m, nil
		case "S":
			if arg == "" {
				return nil, p.errorf("stratum without name")
			}
			cur = &Stratum{Name: arg}
			m.Strata[arg] = cur
		case "F":
			if cur == nil {
				return nil, p.errorf("file section outside stratum")
			}
			if err := p.files(cur); err != nil {
				return nil, err
			}
		case "L":
			if cur == nil {
				return nil, p.errorf("line section outside stratum")
			}
			if err := p.lineInfos(cur); err != nil {
				return nil, err
			}
		case "O":
			if err := p.skipEmbedded(arg); err != nil {
				return nil, err
			}
		default:
			// *V vendor sections and anything newer: skip to the next header.
			p.skipSection()
		}
	}
}

func (p *parser) skipSection() {
	for {
		line, ok := p.peek()
		if !ok || strings.HasPrefix(line, "*") {
			return
		}
		p.pos++
	}
}

// skipEmbedded skips an *O name ... *C name block, honoring nesting.
func (p *parser) skipEmbedded(name string) error {
	depth := 1
	for depth > 0 {
		line, ok := p.next()
		if !ok {
			return p.errorf("unterminated embedded SMAP %q", name)
		}
		switch {
		case strings.HasPrefix(line, "*O"):
			depth++
		case strings.HasPrefix(line, "*C"):
			depth--
		}
	}
	return nil
}

func (p *parser) files(s *Stratum) error {
	for {
		line, ok := p.peek()
		if !ok || strings.HasPrefix(line, "*") {
			return nil
		}
		p.pos++
		if strings.TrimSpace(line) == "" {
			continue
		}

		withPath := false
		if strings.HasPrefix(line, "+") {
			withPath = true
			line = strings.TrimSpace(line[1:])
		}
		idText, name, found := strings.Cut(strings.TrimSpace(line), " ")
		if !found {
			return p.errorf("file entry %q without name", line)
		}
		id, err := strconv.Atoi(idText)
		if err != nil {
			return p.errorf("file id %q: %v", idText, err)
		}
		f := FileInfo{ID: id, Name: strings.TrimSpace(name)}
		if withPath {
			path, ok := p.next()
			if !ok {
				return p.errorf("missing path for file %d", id)
			}
			f.Path = strings.TrimSpace(path)
		}
		s.Files = append(s.Files, f)
	}
}

func (p *parser) lineInfos(s *Stratum) error {
	fileID := 0
	for {
		line, ok := p.peek()
		if !ok || strings.HasPrefix(line, "*") {
			return nil
		}
		p.pos++
		if strings.TrimSpace(line) == "" {
			continue
		}
		li, err := parseLineInfo(strings.TrimSpace(line), fileID)
		if err != nil {
			return p.errorf("%v", err)
		}
		fileID = li.FileID
		s.Lines = append(s.Lines, li)
	}
}

// parseLineInfo parses InputStartLine[#LineFileID][,RepeatCount]:OutputStartLine[,OutputLineIncrement].
// An omitted file id carries over from the previous entry.
func parseLineInfo(text string, fileID int) (LineInfo, error) {
	input, output, found := strings.Cut(text, ":")
	if !found {
		return LineInfo{}, fmt.Errorf("line entry %q without ':'", text)
	}
	li := LineInfo{FileID: fileID, Repeat: 1, Increment: 1}

	var err error
	if in, repeat, ok := strings.Cut(input, ","); ok {
		if li.Repeat, err = strconv.Atoi(repeat); err != nil {
			return LineInfo{}, fmt.Errorf("repeat count in %q: %v", text, err)
		}
		input = in
	}
	if in, id, ok := strings.Cut(input, "#"); ok {
		if li.FileID, err = strconv.Atoi(id); err != nil {
			return LineInfo{}, fmt.Errorf("file id in %q: %v", text, err)
		}
		input = in
	}
	if li.InputStart, err = strconv.Atoi(input); err != nil {
		return LineInfo{}, fmt.Errorf("input line in %q: %v", text, err)
	}

	if out, inc, ok := strings.Cut(output, ","); ok {
		if li.Increment, err = strconv.Atoi(inc); err != nil {
			return LineInfo{}, fmt.Errorf("increment in %q: %v", text, err)
		}
		output = out
	}
	if li.OutputStart, err = strconv.Atoi(output); err != nil {
		return LineInfo{}, fmt.Errorf("output line in %q: %v", text, err)
	}
	if li.Repeat < 0 || li.Increment < 0 {
		return LineInfo{}, fmt.Errorf("negative repeat or increment in %q", text)
	}
	return li, nil
}
