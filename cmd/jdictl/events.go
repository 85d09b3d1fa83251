package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mini-jdi/jdi"
	"mini-jdi/message"
)

type event struct {
	Kind     string    `json:"kind"`
	Request  int32     `json:"request"`
	Thread   uint64    `json:"thread,omitempty"`
	Location *location `json:"location,omitempty"`
	Catch    *location `json:"catch,omitempty"`
	Class    string    `json:"class,omitempty"`
}

func toEvent(e jdi.Event, stratum string) event {
	out := event{Kind: e.Kind().String(), Request: e.RequestID()}
	loc := func(l *jdi.Location) *location {
		if l == nil {
			return nil
		}
		d := describe(l, stratum)
		return &d
	}
	switch e := e.(type) {
	case *jdi.VMStartEvent:
		out.Thread = uint64(e.Thread)
	case *jdi.LocatableEvent:
		out.Thread = uint64(e.Thread)
		out.Location = loc(e.Location)
	case *jdi.ExceptionEvent:
		out.Thread = uint64(e.Thread)
		out.Location = loc(e.Location)
		out.Catch = loc(e.CatchLocation)
	case *jdi.ThreadEvent:
		out.Thread = uint64(e.Thread)
	case *jdi.ClassPrepareEvent:
		out.Thread = uint64(e.Thread)
		out.Class = jdi.SignatureToName(e.Signature)
	case *jdi.ClassUnloadEvent:
		out.Class = jdi.SignatureToName(e.Signature)
	}
	return out
}

func (e event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s request=%d", e.Kind, e.Request)
	if e.Thread != 0 {
		fmt.Fprintf(&b, " thread=%d", e.Thread)
	}
	if e.Class != "" {
		fmt.Fprintf(&b, " class=%s", e.Class)
	}
	if e.Location != nil {
		fmt.Fprintf(&b, " at %s", e.Location)
	}
	if e.Catch != nil {
		fmt.Fprintf(&b, " caught at %s", e.Catch)
	}
	return b.String()
}

// parseBreakpoint splits "com.example.Greeter:8".
func parseBreakpoint(arg string) (string, int, error) {
	class, lineText, ok := strings.Cut(arg, ":")
	if !ok || class == "" {
		return "", 0, fmt.Errorf("breakpoint %q: want class:line", arg)
	}
	line, err := strconv.Atoi(lineText)
	if err != nil || line <= 0 {
		return "", 0, fmt.Errorf("breakpoint %q: bad line number", arg)
	}
	return class, line, nil
}

func setBreakpoints(ctx context.Context, s *jdi.Session, args []string, stratum string) ([]int32, error) {
	var ids []int32
	for _, arg := range args {
		class, line, err := parseBreakpoint(arg)
		if err != nil {
			return ids, err
		}
		types, err := s.ClassesByName(ctx, class)
		if err != nil {
			return ids, err
		}
		if len(types) == 0 {
			return ids, fmt.Errorf("breakpoint %q: class is not loaded", arg)
		}
		locs, err := types[0].LocationsOfLine(ctx, stratum, "", line)
		if err != nil {
			return ids, fmt.Errorf("breakpoint %q: %w", arg, err)
		}
		if len(locs) == 0 {
			return ids, fmt.Errorf("breakpoint %q: no code at that line", arg)
		}
		for _, loc := range locs {
			id, err := s.SetBreakpoint(ctx, loc, message.SuspendEventThread)
			if err != nil {
				return ids, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func newEventsCmd(o *rootOptions) *cobra.Command {
	var (
		breakpoints []string
		count       int
		resume      bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print events reported by the VM",
		Long: "Print events reported by the VM.\n" +
			"\n" +
			"Each --break class:line sets a breakpoint at every code position of the line.\n" +
			"Events are printed until interrupted, the VM goes away or --count event sets\n" +
			"were received.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			setupCtx, cancel := o.timeout(ctx)
			defer cancel()
			s, err := o.attach(setupCtx)
			if err != nil {
				return err
			}
			defer s.Close()

			stratum := o.cfg.Session.DefaultStratum
			ids, err := setBreakpoints(setupCtx, s, breakpoints, stratum)
			defer func() {
				for _, id := range ids {
					clearCtx, cancel := o.timeout(context.Background())
					if err := s.ClearBreakpoint(clearCtx, id); err != nil {
						o.logger.Debug("clearing breakpoint", zap.Int32("request", id), zap.Error(err))
					}
					cancel()
				}
			}()
			if err != nil {
				return err
			}
			if resume {
				if err := s.Resume(setupCtx); err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			for n := 0; count <= 0 || n < count; n++ {
				var set *jdi.EventSet
				select {
				case set = <-s.Events():
				case <-s.Done():
					return s.Err()
				case <-ctx.Done():
					return nil
				}
				for _, e := range set.Events {
					ev := toEvent(e, stratum)
					if err := o.print(w, ev, func(w io.Writer) { fmt.Fprintln(w, ev) }); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringArrayVar(&breakpoints, "break", nil, "set a breakpoint at class:line (repeatable)")
	flags.IntVar(&count, "count", 0, "stop after this many event sets (0: no limit)")
	flags.BoolVar(&resume, "resume", false, "resume the VM after setting breakpoints")
	return cmd
}
