package console

import (
	"context"
	"errors"
	"fmt"

	"mini-jdi/jdi"
	"mini-jdi/smap"
)

var ErrSourceNotFound = errors.New("console: source not found")

// Source is where a link leads in a live VM.
type Source struct {
	Type *jdi.ReferenceType
	// Path is the source path relative to a source root.
	Path string
	// Line is zero-based, as in Link.
	Line int
	// Locations are the code positions of the line; empty when the line has no code
	// or the type has no line information.
	Locations []*jdi.Location
}

// Resolve looks the link's type up in the VM. It fails with ErrSourceNotFound when
// the VM has not loaded the type or the type does not record its source file. The
// locations are those of the link's SourceLine; a frame printed with line 0 has none.
func Resolve(ctx context.Context, s *jdi.Session, link Link) (*Source, error) {
	types, err := s.ClassesByName(ctx, link.TypeName)
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("%w: %s is not loaded", ErrSourceNotFound, link.TypeName)
	}
	rt := types[0]

	path, err := rt.SourcePath()
	if errors.Is(err, jdi.ErrAbsentInformation) {
		return nil, fmt.Errorf("%w: %s has no source information", ErrSourceNotFound, link.TypeName)
	}
	if err != nil {
		return nil, err
	}

	src := &Source{Type: rt, Path: path, Line: link.Line}
	locs, err := rt.LocationsOfLine(ctx, smap.JavaStratum, "", link.SourceLine)
	switch {
	case err == nil:
		src.Locations = locs
	case !errors.Is(err, jdi.ErrAbsentInformation):
		return nil, err
	}
	return src, nil
}
