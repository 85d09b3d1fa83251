// Package console turns Java stack trace lines printed to a console into source
// locations.
//
// A stack frame line looks like
//
//	at com.example.Greeter.greet(Greeter.java:8)
//
// and the link is the token "com.example.Greeter.greet(Greeter.java:8)". The type to
// open is derived from the file name rather than the qualifier, so frames of nested and
// secondary classes lead to the file that defines them.
package console

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrInvalidTypeName   = errors.New("console: unable to parse type name from link")
	ErrInvalidLineNumber = errors.New("console: unable to parse line number from link")
	ErrInvalidLinkText   = errors.New("console: unable to find link text")
)

// JavaLikeExtensions are the file extensions stripped from the file name of a link.
var JavaLikeExtensions = []string{".java"}

// Link is a parsed stack frame link.
type Link struct {
	TypeName string
	// Line is zero-based, as editors count lines.
	Line int
	// SourceLine is the one-based line as printed in the frame. A printed 0 is kept.
	SourceLine int
}

// ParseLink parses a link token into the type to open and the zero-based line.
func ParseLink(text string) (Link, error) {
	typeName, err := TypeName(text)
	if err != nil {
		return Link{}, err
	}
	line, err := LineNumber(text)
	if err != nil {
		return Link{}, err
	}
	return Link{TypeName: typeName, Line: max(line-1, 0), SourceLine: line}, nil
}

// TypeName returns the fully qualified name of the type whose source file the link
// points into: the qualifier's package joined with the file name.
//
//	com.foo.Bar.baz(Bar.java:45)   → com.foo.Bar
//	com.foo.Bar$In.run(Bar.java:3) → com.foo.Bar
//	com.foo.B.baz(A.java:45)       → com.foo.A
//	(Bar.java:1)                   → Bar
func TypeName(text string) (string, error) {
	open := strings.IndexByte(text, '(')
	colon := strings.IndexByte(text, ':')
	if open < 0 || colon <= open {
		return "", fmt.Errorf("%w: %q", ErrInvalidTypeName, text)
	}

	typeName := removeJavaLikeExtension(text[open+1 : colon])

	qualifier := text[:open]
	// Drop the method name, then the class name; what remains is the package.
	cut := strings.LastIndexByte(qualifier, '.')
	if cut >= 0 {
		cut = strings.LastIndexByte(qualifier[:cut], '.')
		if cut < 0 {
			cut = 0 // default package
		}
		qualifier = qualifier[:cut]
	}

	if qualifier != "" {
		typeName = qualifier + "." + typeName
	}
	return typeName, nil
}

func removeJavaLikeExtension(name string) string {
	for _, ext := range JavaLikeExtensions {
		if strings.HasSuffix(name, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

// LineNumber returns the one-based line number of a link: the digits after the last
// ':' up to ')'.
func LineNumber(text string) (int, error) {
	colon := strings.LastIndexByte(text, ':')
	if colon < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLineNumber, text)
	}
	num := text[colon+1:]
	if i := strings.IndexByte(num, ')'); i >= 0 {
		num = num[:i]
	}
	n, err := strconv.ParseInt(num, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidLineNumber, text, err)
	}
	return int(n), nil
}

// LinkText extracts the link token around byte offset in a console line: from after
// the last space at or before offset through the first ')' at or after it.
func LinkText(line string, offset int) (string, error) {
	if offset < 0 || offset > len(line) {
		return "", fmt.Errorf("%w: offset %d outside line of length %d", ErrInvalidLinkText, offset, len(line))
	}
	end := strings.IndexByte(line[offset:], ')')
	if end < 0 {
		return "", fmt.Errorf("%w: no ')' after offset %d", ErrInvalidLinkText, offset)
	}
	end += offset

	start := 0
	limit := min(offset+1, len(line))
	if i := strings.LastIndexByte(line[:limit], ' '); i >= 0 {
		start = i + 1
	}
	return line[start : end+1], nil
}

// framePattern finds the "name(File.java:N)" part of stack frames.
var framePattern = regexp.MustCompile(`[\w$.<>]+\(\w*\.java:\d*\)`)

// Span is the byte range of a link in a line.
type Span struct {
	Offset int
	Length int
}

// FindLinks returns the links in a console line.
func FindLinks(line string) []Span {
	var spans []Span
	for _, m := range framePattern.FindAllStringIndex(line, -1) {
		spans = append(spans, Span{Offset: m[0], Length: m[1] - m[0]})
	}
	return spans
}
