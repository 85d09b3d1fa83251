package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mini-jdi/jdi"
	"mini-jdi/message"
)

func newVersionCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the VM's version and identifier sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := o.timeout(cmd.Context())
			defer cancel()
			s, err := o.attach(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			out := struct {
				Version        jdi.Version
				IDSizes        message.IDSizes
				SupportsStrata bool
				DefaultStratum string `json:",omitempty"`
			}{s.VMVersion(), s.IDSizes(), s.SupportsStrata(), s.DefaultStratum()}
			return o.print(cmd.OutOrStdout(), out, func(w io.Writer) {
				v := s.VMVersion()
				fmt.Fprintf(w, "%s\n", v.Description)
				fmt.Fprintf(w, "JDWP %d.%d, %s %s\n", v.JDWPMajor, v.JDWPMinor, v.VMName, v.VMVersion)
				fmt.Fprintf(w, "id sizes: field=%d method=%d object=%d type=%d frame=%d\n",
					out.IDSizes.FieldIDSize, out.IDSizes.MethodIDSize, out.IDSizes.ObjectIDSize,
					out.IDSizes.ReferenceTypeIDSize, out.IDSizes.FrameIDSize)
				fmt.Fprintf(w, "strata: %v\n", out.SupportsStrata)
			})
		},
	}
}
