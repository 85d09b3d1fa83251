package jdi

import (
	"context"

	"mini-jdi/codec"
	"mini-jdi/message"
)

// Version fetches VirtualMachine.Version. VMVersion returns the copy cached at attach.
func (s *Session) Version(ctx context.Context) (Version, error) {
	r, err := s.command(ctx, message.VMVersion, nil)
	if err != nil {
		return Version{}, err
	}
	v := Version{
		Description: r.String("description"),
		JDWPMajor:   r.Int("jdwpMajor"),
		JDWPMinor:   r.Int("jdwpMinor"),
		VMVersion:   r.String("vmVersion"),
		VMName:      r.String("vmName"),
	}
	return v, r.Err()
}

// ClassesBySignature returns the loaded types with the given JNI signature. More than
// one is possible when several class loaders define it.
func (s *Session) ClassesBySignature(ctx context.Context, signature string) ([]*ReferenceType, error) {
	r, err := s.command(ctx, message.VMClassesBySignature, func(w *codec.Writer) {
		w.String(signature)
	})
	if err != nil {
		return nil, err
	}
	n := r.Count("classes", 1)
	types := make([]*ReferenceType, 0, n)
	for range n {
		rt := s.readTaggedReferenceType(r)
		r.Int("status")
		if rt != nil {
			rt.signature.set(signature)
			types = append(types, rt)
		}
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return types, nil
}

// ClassesByName is ClassesBySignature for a Java class name such as "com.foo.Bar".
func (s *Session) ClassesByName(ctx context.Context, name string) ([]*ReferenceType, error) {
	return s.ClassesBySignature(ctx, NameToSignature(name))
}

// AllClasses returns every type loaded in the VM.
func (s *Session) AllClasses(ctx context.Context) ([]*ReferenceType, error) {
	r, err := s.command(ctx, message.VMAllClasses, nil)
	if err != nil {
		return nil, err
	}
	n := r.Count("classes", 1)
	types := make([]*ReferenceType, 0, n)
	for range n {
		rt := s.readTaggedReferenceType(r)
		sig := r.String("signature")
		r.Int("status")
		if rt != nil && r.Err() == nil {
			rt.signature.set(sig)
			types = append(types, rt)
		}
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return types, nil
}

// Suspend suspends every thread of the VM.
func (s *Session) Suspend(ctx context.Context) error {
	_, err := s.command(ctx, message.VMSuspend, nil)
	return err
}

// Resume resumes every thread of the VM.
func (s *Session) Resume(ctx context.Context) error {
	_, err := s.command(ctx, message.VMResume, nil)
	return err
}
