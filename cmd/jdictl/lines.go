package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mini-jdi/jdi"
)

func newLinesCmd(o *rootOptions) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "lines <class> [method]",
		Short: "Show the line table of a class or one of its methods",
		Long: "Show the line table of a class or one of its methods.\n" +
			"\n" +
			"Lines are reported in --stratum, or the class's default stratum.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := o.timeout(cmd.Context())
			defer cancel()
			s, err := o.attach(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			types, err := s.ClassesByName(ctx, args[0])
			if err != nil {
				return err
			}
			if len(types) == 0 {
				return fmt.Errorf("class %s is not loaded", args[0])
			}
			rt := types[0]
			stratum := o.cfg.Session.DefaultStratum

			var locs []*jdi.Location
			if len(args) == 2 {
				methods, err := rt.MethodsByName(args[1])
				if err != nil {
					return err
				}
				if len(methods) == 0 {
					return fmt.Errorf("%s has no method %s", args[0], args[1])
				}
				for _, m := range methods {
					ml, err := m.AllLineLocations(stratum)
					if err != nil && !errors.Is(err, jdi.ErrAbsentInformation) {
						return err
					}
					locs = append(locs, ml...)
				}
			} else {
				locs, err = rt.AllLineLocations(ctx, stratum, source)
				if err != nil && !errors.Is(err, jdi.ErrAbsentInformation) {
					return err
				}
			}
			if len(locs) == 0 {
				return fmt.Errorf("%s: %w", args[0], jdi.ErrAbsentInformation)
			}

			out := make([]location, len(locs))
			for i, loc := range locs {
				out[i] = describe(loc, stratum)
			}
			return o.print(cmd.OutOrStdout(), out, func(w io.Writer) {
				for _, l := range out {
					fmt.Fprintln(w, l)
				}
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "only lines of this source file")
	return cmd
}
