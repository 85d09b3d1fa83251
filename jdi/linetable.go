package jdi

import (
	"sort"

	"mini-jdi/smap"
)

// LineNotAvailable is returned by line queries when no line table entry covers a code
// index. No valid line is negative.
const LineNotAvailable = -1

type lineEntry struct {
	index      uint64
	line       int
	sourceName string // set for strata other than Java
	sourcePath string
}

// lineTable maps code indices of one method to lines of one stratum. Entries are sorted
// by index; an entry covers the code up to the next entry's index.
type lineTable struct {
	start, end uint64
	entries    []lineEntry
}

// lookup returns the entry covering index.
func (t *lineTable) lookup(index uint64) (lineEntry, bool) {
	if t == nil || len(t.entries) == 0 {
		return lineEntry{}, false
	}
	i := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].index > index
	})
	if i == 0 {
		return lineEntry{}, false
	}
	e := t.entries[i-1]
	if e.line < 0 {
		return lineEntry{}, false
	}
	return e, true
}

// translate derives the table of stratum st from the Java table. Java lines the stratum
// does not map keep their code index with LineNotAvailable, so they do not borrow the
// previous mapped line.
func (t *lineTable) translate(st *smap.Stratum, packagePath string) *lineTable {
	out := &lineTable{start: t.start, end: t.end, entries: make([]lineEntry, 0, len(t.entries))}
	for _, e := range t.entries {
		file, line, ok := st.Map(e.line)
		if !ok {
			out.entries = append(out.entries, lineEntry{index: e.index, line: LineNotAvailable})
			continue
		}
		path := file.Path
		if path == "" {
			path = packagePath + file.Name
		}
		out.entries = append(out.entries, lineEntry{
			index:      e.index,
			line:       line,
			sourceName: file.Name,
			sourcePath: path,
		})
	}
	return out
}
