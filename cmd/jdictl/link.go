package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"mini-jdi/console"
)

func newLinkCmd(o *rootOptions) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "link <stack trace line>...",
		Short: "Resolve stack trace links to source files",
		Long: "Resolve stack trace links to source files.\n" +
			"\n" +
			"Every \"pkg.Type.method(Type.java:N)\" link in the arguments is parsed and, unless\n" +
			"--offline is given, looked up in the VM.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			spans := console.FindLinks(text)
			if len(spans) == 0 {
				return fmt.Errorf("%w: no link in %q", console.ErrInvalidLinkText, text)
			}

			type result struct {
				Text      string     `json:"text"`
				Type      string     `json:"type"`
				Line      int        `json:"line"`
				Path      string     `json:"path,omitempty"`
				Locations []location `json:"locations,omitempty"`
				Error     string     `json:"error,omitempty"`
			}
			var out []result
			for _, span := range spans {
				linkText := text[span.Offset : span.Offset+span.Length]
				link, err := console.ParseLink(linkText)
				if err != nil {
					out = append(out, result{Text: linkText, Error: err.Error()})
					continue
				}
				out = append(out, result{Text: linkText, Type: link.TypeName, Line: link.Line + 1})
			}

			if !offline {
				ctx, cancel := o.timeout(cmd.Context())
				defer cancel()
				s, err := o.attach(ctx)
				if err != nil {
					return err
				}
				defer s.Close()

				for i := range out {
					if out[i].Error != "" {
						continue
					}
					link := console.Link{TypeName: out[i].Type, Line: max(out[i].Line-1, 0), SourceLine: out[i].Line}
					src, err := console.Resolve(ctx, s, link)
					if err != nil {
						out[i].Error = err.Error()
						continue
					}
					out[i].Path = src.Path
					for _, loc := range src.Locations {
						out[i].Locations = append(out[i].Locations, describe(loc, "Java"))
					}
				}
			}

			return o.print(cmd.OutOrStdout(), out, func(w io.Writer) {
				for _, r := range out {
					switch {
					case r.Error != "":
						fmt.Fprintf(w, "%s: %s\n", r.Text, r.Error)
					case r.Path != "":
						fmt.Fprintf(w, "%s -> %s:%d (%d locations)\n", r.Text, r.Path, r.Line, len(r.Locations))
					default:
						fmt.Fprintf(w, "%s -> %s line %d\n", r.Text, r.Type, r.Line)
					}
				}
			})
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "only parse, do not attach")
	return cmd
}
