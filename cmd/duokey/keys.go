package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/TheusHen/duokey/duokey/config"
	"github.com/TheusHen/duokey/duokey/identity"
)

func newKeygenCommand(a *app) *cobra.Command {
	var (
		p, q   int
		name   string
		asTOML bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Derive a key pair from two distinct primes",
		Example: `  duokey keygen -p 3 -q 11
  duokey keygen -p 5 -q 7 --name bob --toml >> bob.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := identity.GenerateKeyPair(p, q)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asTOML {
				doc := struct{ Identity config.Identity }{config.Identity{
					Name:            name,
					Modulus:         kp.Modulus,
					PublicExponent:  kp.PublicExponent,
					PrivateExponent: kp.PrivateExponent,
				}}
				return toml.NewEncoder(out).Encode(doc)
			}
			fmt.Fprintf(out, "modulus          %d\n", kp.Modulus)
			fmt.Fprintf(out, "public exponent  %d\n", kp.PublicExponent)
			fmt.Fprintf(out, "private exponent %d\n", kp.PrivateExponent)
			fmt.Fprintf(out, "fingerprint      %s\n", kp.Public().Fingerprint())
			return nil
		},
	}
	cmd.Flags().IntVarP(&p, "p", "p", 0, "first prime")
	cmd.Flags().IntVarP(&q, "q", "q", 0, "second prime")
	cmd.Flags().StringVar(&name, "name", "", "identity name for --toml output")
	cmd.Flags().BoolVar(&asTOML, "toml", false, "print an [Identity] configuration section")
	_ = cmd.MarkFlagRequired("p")
	_ = cmd.MarkFlagRequired("q")
	return cmd
}

// keyFlags are the exponent and modulus of a transform.
type keyFlags struct {
	key, modulus int
}

func (k *keyFlags) register(cmd *cobra.Command, usage string) {
	cmd.Flags().IntVarP(&k.key, "key", "k", 0, usage)
	cmd.Flags().IntVarP(&k.modulus, "modulus", "m", 0, "modulus")
}

func (k *keyFlags) set() bool { return k.key != 0 || k.modulus != 0 }

func newEncryptCommand(a *app) *cobra.Command {
	var k keyFlags
	cmd := &cobra.Command{
		Use:     "encrypt TEXT",
		Short:   "Encrypt TEXT with a public exponent",
		Example: `  duokey encrypt -k 3 -m 33 "secret message"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := identity.EncryptMessage(args[0], k.key, k.modulus)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ct)
			return nil
		},
	}
	k.register(cmd, "public exponent")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("modulus")
	return cmd
}

func newDecryptCommand(a *app) *cobra.Command {
	var k keyFlags
	cmd := &cobra.Command{
		Use:   "decrypt TEXT",
		Short: "Decrypt TEXT with a private exponent, or the configured identity's",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !k.set() {
				kp, err := a.cfg.Identity.KeyPair()
				if err != nil {
					return err
				}
				k = keyFlags{key: kp.PrivateExponent, modulus: kp.Modulus}
			}
			pt, err := identity.DecryptMessage(args[0], k.key, k.modulus)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pt)
			return nil
		},
	}
	k.register(cmd, "private exponent")
	return cmd
}

func newSignCommand(a *app) *cobra.Command {
	var k keyFlags
	cmd := &cobra.Command{
		Use:   "sign TEXT",
		Short: "Sign TEXT with a private exponent, or the configured identity's",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				sig string
				err error
			)
			if k.set() {
				sig, err = identity.EncryptMessage(args[0], k.key, k.modulus)
			} else {
				var id *identity.Identity
				if id, err = a.identity(); err != nil {
					return err
				}
				sig, err = id.SignMessage(args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig)
			return nil
		},
	}
	k.register(cmd, "private exponent")
	return cmd
}

func newVerifyCommand(a *app) *cobra.Command {
	var k keyFlags
	cmd := &cobra.Command{
		Use:     "verify TEXT SIGNATURE",
		Short:   "Check SIGNATURE of TEXT against a public key",
		Example: `  duokey verify -k 3 -m 33 "hello world" Bqllufwuilj`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := identity.Unauthenticated()
			if identity.ConfirmAuthenticity(args[0], args[1], k.key, k.modulus) {
				res = identity.Authenticated(args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Outcome())
			return nil
		},
	}
	k.register(cmd, "public exponent")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("modulus")
	return cmd
}
