package console

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseLink(t *testing.T) {
	cases := []struct {
		text string
		want Link
	}{
		{"com.foo.Bar.baz(Bar.java:45)", Link{TypeName: "com.foo.Bar", Line: 44, SourceLine: 45}},
		{"(Bar.java:1)", Link{TypeName: "Bar", Line: 0, SourceLine: 1}},
		{"Bar.baz(Bar.java:10)", Link{TypeName: "Bar", Line: 9, SourceLine: 10}},
		{"com.foo.Bar$Inner.run(Bar.java:3)", Link{TypeName: "com.foo.Bar", Line: 2, SourceLine: 3}},
		{"com.foo.B.baz(A.java:7)", Link{TypeName: "com.foo.A", Line: 6, SourceLine: 7}},
		{"com.foo.Bar.<init>(Bar.java:0)", Link{TypeName: "com.foo.Bar", Line: 0, SourceLine: 0}},
		{"Bar.kt.run(Bar.kt:5)", Link{TypeName: "Bar.Bar.kt", Line: 4, SourceLine: 5}},
	}
	for _, tc := range cases {
		got, err := ParseLink(tc.text)
		require.NoError(t, err, tc.text)
		assert.Equal(t, tc.want, got, tc.text)
	}
}

func TestParseLinkErrors(t *testing.T) {
	_, err := ParseLink("no parens here")
	assert.ErrorIs(t, err, ErrInvalidTypeName)

	_, err = ParseLink("at:x.Bar.baz(Bar.java:3)")
	assert.ErrorIs(t, err, ErrInvalidTypeName)

	_, err = ParseLink("com.foo.Bar.baz(Bar.java:forty)")
	assert.ErrorIs(t, err, ErrInvalidLineNumber)

	_, err = ParseLink("com.foo.Bar.baz(Native Method:)")
	assert.ErrorIs(t, err, ErrInvalidLineNumber)

	_, err = LineNumber("Bar.java")
	assert.ErrorIs(t, err, ErrInvalidLineNumber)
}

func TestTypeNameWithoutMethod(t *testing.T) {
	// A qualifier without dots is kept whole.
	name, err := TypeName("pkg(Bar.java:1)")
	require.NoError(t, err)
	assert.Equal(t, "pkg.Bar", name)
}

func TestLinkText(t *testing.T) {
	line := "\tat com.foo.Bar.baz(Bar.java:45) ~[app.jar]"
	off := strings.Index(line, "Bar.baz")

	text, err := LinkText(line, off)
	require.NoError(t, err)
	assert.Equal(t, "com.foo.Bar.baz(Bar.java:45)", text)

	text, err = LinkText("Bar.baz(Bar.java:1)", 0)
	require.NoError(t, err)
	assert.Equal(t, "Bar.baz(Bar.java:1)", text)

	_, err = LinkText("no closing paren", 3)
	assert.ErrorIs(t, err, ErrInvalidLinkText)
	_, err = LinkText("x)", 5)
	assert.ErrorIs(t, err, ErrInvalidLinkText)
}

func TestFindLinks(t *testing.T) {
	line := "Exception in thread \"main\"\n\tat com.foo.Bar.baz(Bar.java:45)\n\tat Main.main(Main.java:3)"
	spans := FindLinks(line)
	require.Len(t, spans, 2)
	assert.Equal(t, "com.foo.Bar.baz(Bar.java:45)", line[spans[0].Offset:spans[0].Offset+spans[0].Length])
	assert.Equal(t, "Main.main(Main.java:3)", line[spans[1].Offset:spans[1].Offset+spans[1].Length])

	assert.Empty(t, FindLinks("at java.lang.Thread.run(Native Method)"))
}

var (
	identGen = rapid.StringMatching(`[a-z][a-zA-Z0-9_]{0,8}`)
	classGen = rapid.StringMatching(`[A-Z][a-zA-Z0-9_]{0,8}`)
)

// A well-formed frame always yields its package plus the file's class and a zero-based
// line.
func TestParseLinkProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pkg := rapid.SliceOfN(identGen, 0, 4).Draw(t, "pkg")
		class := classGen.Draw(t, "class")
		file := classGen.Draw(t, "file")
		method := identGen.Draw(t, "method")
		line := rapid.IntRange(0, 1<<20).Draw(t, "line")

		qualified := strings.Join(append(append([]string{}, pkg...), class, method), ".")
		text := fmt.Sprintf("%s(%s.java:%d)", qualified, file, line)

		got, err := ParseLink(text)
		if err != nil {
			t.Fatalf("%q: %v", text, err)
		}
		want := file
		if len(pkg) > 0 {
			want = strings.Join(pkg, ".") + "." + file
		}
		if got.TypeName != want {
			t.Fatalf("%q: type %q, want %q", text, got.TypeName, want)
		}
		if got.Line != max(line-1, 0) {
			t.Fatalf("%q: line %d, want %d", text, got.Line, max(line-1, 0))
		}
		if got.SourceLine != line {
			t.Fatalf("%q: source line %d, want %d", text, got.SourceLine, line)
		}

		// The link survives being embedded in a console line.
		consoleLine := "\tat " + text + " ~[app.jar:1.0]"
		found, err := LinkText(consoleLine, strings.Index(consoleLine, "("))
		if err != nil || found != text {
			t.Fatalf("LinkText(%q) = %q, %v", consoleLine, found, err)
		}
	})
}

// Text without '(' before the first ':' never parses.
func TestParseLinkRejectsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.StringMatching(`[a-zA-Z0-9.: ]{0,30}`).Draw(t, "text")
		if _, err := ParseLink(text); err == nil {
			t.Fatalf("%q parsed", text)
		}
	})
}
