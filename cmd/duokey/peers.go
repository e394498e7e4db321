package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPeersCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "peers",
		Short: "List the peers in the directory",
		Long: `peers prints every directory entry: the configured peers and, with
Network.Learn and a Network.Directory file, the peers learned from earlier
sessions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := a.cfg.Directory()
			if err != nil {
				return err
			}
			defer dir.Close()
			all, err := dir.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range all {
				addr := "-"
				if e.Addr.IsValid() {
					addr = e.Addr.String()
				}
				fmt.Fprintf(out, "%s %s (%d, %d) %s\n", e.Fingerprint, e.Name, e.PublicKey.Modulus, e.PublicKey.Exponent, addr)
			}
			return nil
		},
	}
}
