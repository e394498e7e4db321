package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheusHen/duokey/duokey/exchange"
)

func newExchangeCommand(a *app) *cobra.Command {
	var prime, base int
	cmd := &cobra.Command{
		Use:   "exchange TEXT",
		Short: "Agree on a secret between two local senders and pass TEXT through it",
		Long: `exchange creates two senders, runs the key agreement between them in the
configured group, or the one given by --prime and --base, and sends TEXT from
the first to the second.`,
		Example: `  duokey exchange --prime 13 --base 17 "secret message"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g := a.cfg.Group()
			if prime != 0 {
				g.Prime = prime
			}
			if base != 0 {
				g.Base = base
			}
			opts := exchange.Options{KeyLimit: a.cfg.Exchange.KeyLimit, Logger: a.log}
			alice, err := exchange.NewSender(opts)
			if err != nil {
				return err
			}
			bob, err := exchange.NewSender(opts)
			if err != nil {
				return err
			}
			if err := exchange.ExchangeKeys(alice, bob, g); err != nil {
				return err
			}
			pa, _ := alice.PartialKey()
			pb, _ := bob.PartialKey()

			ct, err := alice.SendMessage(args[0], bob)
			if err != nil {
				return err
			}
			pt, err := bob.ReceiveMessage(ct)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "group        prime=%d base=%d\n", g.Prime, g.Base)
			fmt.Fprintf(out, "partial keys %d %d\n", pa, pb)
			fmt.Fprintf(out, "ciphertext   %q\n", ct)
			fmt.Fprintf(out, "plaintext    %s\n", pt)
			return nil
		},
	}
	cmd.Flags().IntVar(&prime, "prime", 0, "group prime (default from config)")
	cmd.Flags().IntVar(&base, "base", 0, "group base (default from config)")
	return cmd
}
