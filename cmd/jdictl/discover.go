package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mini-jdi/loadbalance"
)

func newDiscoverCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "List the VMs registered for --app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := o.timeout(cmd.Context())
			defer cancel()

			reg, err := o.cfg.Registry.Open(o.logger)
			if err != nil {
				return err
			}
			defer reg.Close()

			instances, err := reg.Discover(ctx, o.cfg.Target.App)
			if err != nil {
				return err
			}
			constraint, err := o.cfg.Target.VersionConstraint()
			if err != nil {
				return err
			}
			instances = loadbalance.FilterByVersion(instances, constraint)

			return o.print(cmd.OutOrStdout(), instances, func(w io.Writer) {
				if len(instances) == 0 {
					fmt.Fprintf(w, "no instances of %s\n", o.cfg.Target.App)
					return
				}
				for _, inst := range instances {
					fmt.Fprintf(w, "%-21s JDWP %-5s weight=%d %s\n", inst.Addr, inst.Version, inst.Weight, inst.VMName)
				}
			})
		},
	}
}
