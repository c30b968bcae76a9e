// Command ng-broker is a thin debug CLI around the local broker (spec §1
// Configuration): it wires a Config variant from flags/environment/config
// file and drives wallet and session lifecycle operations for manual
// testing, without embedding into an application runtime.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nextgraph-org/ng-repo-go/broker"
	"github.com/nextgraph-org/ng-repo-go/common/crypto/encryption"
	"github.com/nextgraph-org/ng-repo-go/common/crypto/hash"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ng-broker",
		Short: "Debug CLI for the NextGraph local broker",
	}

	root.PersistentFlags().String("base-dir", "", "persist wallets/sessions under this directory (default: in-memory only)")
	root.PersistentFlags().String("config", "", "config file (optional)")
	_ = viper.BindPFlag("base-dir", root.PersistentFlags().Lookup("base-dir"))

	root.AddCommand(newWalletCmd())
	root.AddCommand(newSessionCmd())

	cobra.OnInitialize(func() {
		if cfgFile, _ := root.PersistentFlags().GetString("config"); cfgFile != "" {
			viper.SetConfigFile(cfgFile)
			_ = viper.ReadInConfig()
		}
		viper.AutomaticEnv()
	})

	return root
}

// brokerFromFlags builds a LocalBroker whose Config variant follows
// spec §1's "--base-dir selects BasePathConfig; otherwise InMemoryConfig"
// convention.
func brokerFromFlags() *broker.LocalBroker {
	var cfg broker.Config
	if dir := viper.GetString("base-dir"); dir != "" {
		cfg = broker.BasePathConfig{Dir: dir}
	} else {
		cfg = broker.InMemoryConfig{}
	}
	b := broker.NewLocalBroker(cfg)
	b.Init()
	return b
}

func newWalletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Wallet lifecycle operations",
	}
	cmd.AddCommand(newWalletCreateCmd())
	return cmd
}

func newWalletCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create [name] [passphrase]",
		Short: "Create and open a new wallet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b := brokerFromFlags()
			key := passphraseToKey(args[1])
			if _, err := b.WalletCreate(broker.WalletName(args[0]), key); err != nil {
				return err
			}
			fmt.Printf("wallet %q created\n", args[0])
			return nil
		},
	}
}

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Session lifecycle operations (debug only: no persisted repository identity yet)",
	}
	return cmd
}

// passphraseToKey derives a fixed-size wallet key from an operator-supplied
// passphrase; real deployments should derive this from a proper KDF wired
// in at the application layer, not the debug CLI.
func passphraseToKey(passphrase string) encryption.K {
	return encryption.K(hash.Sum([]byte(passphrase)))
}
