package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func newClassesCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "classes [prefix]",
		Short: "List loaded classes",
		Long: "List loaded classes.\n" +
			"\n" +
			"With a prefix, only classes whose name starts with it are listed.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := o.timeout(cmd.Context())
			defer cancel()
			s, err := o.attach(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			types, err := s.AllClasses(ctx)
			if err != nil {
				return err
			}
			type class struct {
				Name    string   `json:"name"`
				Tag     string   `json:"tag"`
				Source  string   `json:"source,omitempty"`
				Strata  []string `json:"strata"`
				Default string   `json:"defaultStratum"`
			}
			var out []class
			for _, rt := range types {
				name, err := rt.Name()
				if err != nil {
					return err
				}
				if len(args) == 1 && !strings.HasPrefix(name, args[0]) {
					continue
				}
				c := class{
					Name:    name,
					Tag:     rt.Tag().String(),
					Strata:  rt.AvailableStrata(),
					Default: rt.DefaultStratum(),
				}
				// Types compiled without debug information have no source.
				c.Source, _ = rt.SourceName()
				out = append(out, c)
			}
			sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

			return o.print(cmd.OutOrStdout(), out, func(w io.Writer) {
				for _, c := range out {
					fmt.Fprintf(w, "%-6s %s", c.Tag, c.Name)
					if c.Source != "" {
						fmt.Fprintf(w, " (%s)", c.Source)
					}
					if len(c.Strata) > 1 {
						fmt.Fprintf(w, " strata=%s", strings.Join(c.Strata, ","))
					}
					fmt.Fprintln(w)
				}
			})
		},
	}
}
