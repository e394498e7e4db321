// Command duokey runs the duokey protocols from the command line: key
// generation and the RSA style transforms, a local key agreement demo,
// and a QUIC listener and sender for authenticated messages.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TheusHen/duokey/duokey/config"
	"github.com/TheusHen/duokey/duokey/identity"
	"github.com/TheusHen/duokey/duokey/log"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app is the state shared by the subcommands once the configuration has
// been loaded.
type app struct {
	configFile string
	cfg        *config.Config
	log        log.Logger
}

func (a *app) load() error {
	var err error
	if a.configFile == "" {
		a.cfg = config.Default()
	} else if a.cfg, err = config.Load(a.configFile); err != nil {
		return fmt.Errorf("failed to load config file: %w", err)
	}
	a.log, err = a.cfg.Logger()
	return err
}

// identity builds the configured identity.
func (a *app) identity() (*identity.Identity, error) {
	kp, err := a.cfg.Identity.KeyPair()
	if err != nil {
		return nil, err
	}
	return identity.FromKeyPair(kp, identity.Options{Name: a.cfg.Identity.Name, Logger: a.log})
}

func newRootCommand() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "duokey",
		Short: "Toy RSA and Diffie-Hellman messaging",
		Long: `duokey implements two toy protocols: textbook RSA over an 81 symbol
alphabet with signed, authenticated messages, and a Diffie-Hellman agreement
keying an XOR cipher. Neither is secure.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	cmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "TOML configuration file")

	cmd.AddCommand(
		newKeygenCommand(a),
		newEncryptCommand(a),
		newDecryptCommand(a),
		newSignCommand(a),
		newVerifyCommand(a),
		newExchangeCommand(a),
		newListenCommand(a),
		newSendCommand(a),
		newPeersCommand(a),
	)
	return cmd
}
