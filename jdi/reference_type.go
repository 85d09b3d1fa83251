package jdi

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mini-jdi/codec"
	"mini-jdi/message"
	"mini-jdi/smap"
)

// prefetchLimit bounds the line table requests AllLineLocations keeps in flight.
const prefetchLimit = 8

// ReferenceType mirrors a class, interface or array type loaded in the VM.
type ReferenceType struct {
	vm *Session
	id message.ReferenceTypeID

	mu  sync.Mutex
	tag message.TypeTag

	signature  lazy[string]
	methods    lazy[[]*Method]
	sourceName lazy[string]
	smap       lazy[*smap.SMAP]
}

func newReferenceType(s *Session, tag message.TypeTag, id message.ReferenceTypeID) *ReferenceType {
	return &ReferenceType{vm: s, tag: tag, id: id}
}

func (rt *ReferenceType) ID() message.ReferenceTypeID {
	return rt.id
}

func (rt *ReferenceType) VirtualMachine() *Session {
	return rt.vm
}

func (rt *ReferenceType) Tag() message.TypeTag {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.tag
}

func (rt *ReferenceType) setTag(tag message.TypeTag) {
	rt.mu.Lock()
	rt.tag = tag
	rt.mu.Unlock()
}

// Signature returns the JNI signature, e.g. "Lcom/foo/Bar;".
func (rt *ReferenceType) Signature() (string, error) {
	return rt.signature.get(func() (string, error) {
		r, err := rt.vm.command(rt.vm.ctx, message.RTSignature, func(w *codec.Writer) {
			w.ReferenceTypeID(rt.id)
		})
		if err != nil {
			return "", err
		}
		sig := r.String("signature")
		return sig, r.Err()
	})
}

// Name returns the Java name, e.g. "com.foo.Bar" or "int[]".
func (rt *ReferenceType) Name() (string, error) {
	sig, err := rt.Signature()
	if err != nil {
		return "", err
	}
	return SignatureToName(sig), nil
}

// Methods returns the methods declared directly by this type.
func (rt *ReferenceType) Methods() ([]*Method, error) {
	return rt.methods.get(func() ([]*Method, error) {
		r, err := rt.vm.command(rt.vm.ctx, message.RTMethods, func(w *codec.Writer) {
			w.ReferenceTypeID(rt.id)
		})
		if err != nil {
			return nil, err
		}
		n := r.Count("declared", 1)
		methods := make([]*Method, 0, n)
		for range n {
			id := r.MethodID("methodID")
			name := r.String("name")
			sig := r.String("signature")
			mods := r.Int("modBits")
			if r.Err() != nil {
				break
			}
			m := rt.vm.mirrors.method(rt, id)
			m.setInfo(name, sig, mods)
			methods = append(methods, m)
		}
		if err := r.Err(); err != nil {
			return nil, err
		}
		return methods, nil
	})
}

// MethodsByName returns the declared methods with the given name.
func (rt *ReferenceType) MethodsByName(name string) ([]*Method, error) {
	all, err := rt.Methods()
	if err != nil {
		return nil, err
	}
	var out []*Method
	for _, m := range all {
		if n, _ := m.Name(); n == name {
			out = append(out, m)
		}
	}
	return out, nil
}

// SourceName returns the Java source file name from the class file's SourceFile
// attribute.
func (rt *ReferenceType) SourceName() (string, error) {
	return rt.sourceName.get(func() (string, error) {
		r, err := rt.vm.command(rt.vm.ctx, message.RTSourceFile, func(w *codec.Writer) {
			w.ReferenceTypeID(rt.id)
		})
		if err != nil {
			return "", err
		}
		name := r.String("sourceFile")
		return name, r.Err()
	})
}

// SourcePath returns the Java source path relative to a source root: the package
// directory joined with SourceName.
func (rt *ReferenceType) SourcePath() (string, error) {
	name, err := rt.SourceName()
	if err != nil {
		return "", err
	}
	pkg, err := rt.packagePath()
	if err != nil {
		return "", err
	}
	return filepath.FromSlash(pkg + name), nil
}

// SourceDebugExtension returns the raw SourceDebugExtension attribute.
func (rt *ReferenceType) SourceDebugExtension() (string, error) {
	if !rt.vm.SupportsStrata() {
		return "", ErrAbsentInformation
	}
	r, err := rt.vm.command(rt.vm.ctx, message.RTSourceDebugExtension, func(w *codec.Writer) {
		w.ReferenceTypeID(rt.id)
	})
	if IsCode(err, message.ErrNotImplemented) {
		return "", ErrAbsentInformation
	}
	if err != nil {
		return "", err
	}
	ext := r.String("extension")
	return ext, r.Err()
}

// SMAP returns the parsed source map, or nil when the type has none. A malformed
// extension is logged and treated as absent.
func (rt *ReferenceType) SMAP() (*smap.SMAP, error) {
	return rt.smap.get(func() (*smap.SMAP, error) {
		ext, err := rt.SourceDebugExtension()
		if errors.Is(err, ErrAbsentInformation) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		m, err := smap.Parse(ext)
		if err != nil {
			rt.vm.logger.Warn("ignoring malformed source map", zap.Stringer("type", rt.id), zap.Error(err))
			return nil, nil
		}
		return m, nil
	})
}

// smapOrNil is SMAP for callers that degrade to the Java stratum on any failure.
func (rt *ReferenceType) smapOrNil() *smap.SMAP {
	m, err := rt.SMAP()
	if err != nil {
		rt.vm.logger.Debug("source map unavailable", zap.Stringer("type", rt.id), zap.Error(err))
		return nil
	}
	return m
}

// DefaultStratum returns the type's own default stratum: the source map's default when
// there is one, otherwise Java.
func (rt *ReferenceType) DefaultStratum() string {
	m := rt.smapOrNil()
	if m == nil {
		return smap.JavaStratum
	}
	if m.DefaultStratum == smap.JavaStratum || m.Stratum(m.DefaultStratum) != nil {
		return m.DefaultStratum
	}
	return smap.JavaStratum
}

// AvailableStrata lists the strata line queries can use for this type.
func (rt *ReferenceType) AvailableStrata() []string {
	return rt.smapOrNil().StratumNames()
}

// stratumFor resolves a requested stratum. "" means the session default, and when that
// is also unset, the type's default. A stratum the type does not define falls back to
// the type's default.
func (rt *ReferenceType) stratumFor(requested string) string {
	if requested == "" {
		requested = rt.vm.DefaultStratum()
	}
	if requested == "" {
		return rt.DefaultStratum()
	}
	if requested == smap.JavaStratum {
		return requested
	}
	if rt.smapOrNil().Stratum(requested) != nil {
		return requested
	}
	return rt.DefaultStratum()
}

// packagePath returns the slash-separated directory of the type's package, with a
// trailing slash, or "" for the default package.
func (rt *ReferenceType) packagePath() (string, error) {
	name, err := rt.Name()
	if err != nil {
		return "", err
	}
	name = strings.TrimRight(name, "[]")
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return "", nil
	}
	return strings.ReplaceAll(name[:i], ".", "/") + "/", nil
}

func (rt *ReferenceType) lineNumber(m *Method, index uint64, stratum string) int {
	t, err := m.lineTable(rt.stratumFor(stratum))
	if err != nil {
		return LineNotAvailable
	}
	e, ok := t.lookup(index)
	if !ok {
		return LineNotAvailable
	}
	return e.line
}

func (rt *ReferenceType) sourceNameAt(m *Method, index uint64, stratum string) (string, error) {
	st := rt.stratumFor(stratum)
	if st == smap.JavaStratum {
		return rt.SourceName()
	}
	t, err := m.lineTable(st)
	if err != nil {
		return "", err
	}
	e, ok := t.lookup(index)
	if !ok {
		return "", ErrAbsentInformation
	}
	return e.sourceName, nil
}

func (rt *ReferenceType) sourcePathAt(m *Method, index uint64, stratum string) (string, error) {
	st := rt.stratumFor(stratum)
	if st == smap.JavaStratum {
		return rt.SourcePath()
	}
	t, err := m.lineTable(st)
	if err != nil {
		return "", err
	}
	e, ok := t.lookup(index)
	if !ok {
		return "", ErrAbsentInformation
	}
	return filepath.FromSlash(e.sourcePath), nil
}

// AllLineLocations returns one location per line table entry of every method, in
// location order. A non-empty sourceName keeps only locations in that source file.
// It fails with ErrAbsentInformation when no method has line information.
func (rt *ReferenceType) AllLineLocations(ctx context.Context, stratum, sourceName string) ([]*Location, error) {
	methods, err := rt.Methods()
	if err != nil {
		return nil, err
	}
	st := rt.stratumFor(stratum)

	var javaSource string
	if sourceName != "" && st == smap.JavaStratum {
		if javaSource, err = rt.SourceName(); err != nil {
			return nil, err
		}
	}

	tables := make([]*lineTable, len(methods))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(prefetchLimit)
	for i, m := range methods {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := m.lineTable(st)
			if errors.Is(err, ErrAbsentInformation) {
				return nil
			}
			tables[i] = t
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("jdi: line tables of %v: %w", rt.id, err)
	}

	var locs []*Location
	found := false
	for i, t := range tables {
		if t == nil {
			continue
		}
		found = true
		for _, e := range t.entries {
			if e.line < 0 {
				continue
			}
			if sourceName != "" {
				name := e.sourceName
				if st == smap.JavaStratum {
					name = javaSource
				}
				if name != sourceName {
					continue
				}
			}
			locs = append(locs, NewLocation(methods[i], e.index))
		}
	}
	if !found && len(methods) > 0 {
		return nil, ErrAbsentInformation
	}
	slices.SortFunc(locs, (*Location).Compare)
	return locs, nil
}

// LocationsOfLine returns the locations whose line in stratum is line.
func (rt *ReferenceType) LocationsOfLine(ctx context.Context, stratum, sourceName string, line int) ([]*Location, error) {
	all, err := rt.AllLineLocations(ctx, stratum, sourceName)
	if err != nil {
		return nil, err
	}
	var out []*Location
	for _, loc := range all {
		if loc.LineNumberStratum(stratum) == line {
			out = append(out, loc)
		}
	}
	return out, nil
}

func (rt *ReferenceType) Equal(other *ReferenceType) bool {
	return other != nil && rt.vm == other.vm && rt.id == other.id
}

func (rt *ReferenceType) String() string {
	if name, err := rt.Name(); err == nil {
		return rt.Tag().String() + " " + name
	}
	return fmt.Sprintf("%v %v", rt.Tag(), rt.id)
}

// SignatureToName converts a JNI type signature to a Java type name.
func SignatureToName(sig string) string {
	dims := 0
	for strings.HasPrefix(sig, "[") {
		dims++
		sig = sig[1:]
	}
	var name string
	switch {
	case strings.HasPrefix(sig, "L") && strings.HasSuffix(sig, ";"):
		name = strings.ReplaceAll(sig[1:len(sig)-1], "/", ".")
	case len(sig) == 1:
		name = primitiveNames[sig[0]]
	}
	if name == "" {
		name = sig
	}
	return name + strings.Repeat("[]", dims)
}

// NameToSignature converts a Java class name to a JNI signature.
func NameToSignature(name string) string {
	return "L" + strings.ReplaceAll(name, ".", "/") + ";"
}

var primitiveNames = map[byte]string{
	'Z': "boolean",
	'B': "byte",
	'C': "char",
	'S': "short",
	'I': "int",
	'J': "long",
	'F': "float",
	'D': "double",
	'V': "void",
}
