package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/fwcore/doubleratchet"
)

var (
	verbose    bool
	cryptoName string
	logger     *slog.Logger
)

func Execute() error {
	root := &cobra.Command{
		Use:           "ratchetsim",
		Short:         "Exercise the double ratchet over a simulated link",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			if _, err := selectCrypto(cryptoName); err != nil {
				return err
			}
			return nil
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every rejected message")
	root.PersistentFlags().StringVar(&cryptoName, "crypto", "default", "crypto implementation (default|circl)")

	root.AddCommand(simulateCmd(), keygenCmd())
	return root.Execute()
}

func selectCrypto(name string) (doubleratchet.Crypto, error) {
	switch name {
	case "default", "":
		return doubleratchet.DefaultCrypto{}, nil
	case "circl":
		return doubleratchet.CirclCrypto{}, nil
	default:
		return nil, fmt.Errorf("unknown crypto %q", name)
	}
}
