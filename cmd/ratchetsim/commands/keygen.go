package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func keygenCmd() *cobra.Command {
	var showPrivate bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Print a fresh ratchet key pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := selectCrypto(cryptoName)
			if err != nil {
				return err
			}
			pair, err := c.GenerateDH()
			if err != nil {
				return err
			}
			defer pair.Wipe()

			fmt.Fprintf(cmd.OutOrStdout(), "public:  %s\n", pair.PublicKey)
			if showPrivate {
				fmt.Fprintf(cmd.OutOrStdout(), "private: %s\n", pair.PrivateKey)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showPrivate, "private", false, "also print the private key")
	return cmd
}
