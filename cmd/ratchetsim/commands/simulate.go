package commands

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	mrand "math/rand"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fwcore/doubleratchet"
)

type simConfig struct {
	Messages      int
	Burst         int
	MaxSkip       int
	MaxKeep       int
	ReorderWindow int
	Drop          float64
	Seed          int64
}

type simStats struct {
	Sent      int
	NotReady  int
	Dropped   int
	Delivered int
	Rejected  map[string]int
	Pending   uint
}

func simulateCmd() *cobra.Command {
	cfg := simConfig{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run an Alice/Bob exchange over a lossy, reordering link",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Drop < 0 || cfg.Drop >= 1 {
				return fmt.Errorf("--drop must be in [0, 1)")
			}
			if cfg.Burst < 1 {
				return fmt.Errorf("--burst must be positive")
			}
			c, err := selectCrypto(cryptoName)
			if err != nil {
				return err
			}
			stats, err := runSimulation(cfg, c, logger)
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}

	cmd.Flags().IntVarP(&cfg.Messages, "messages", "n", 200, "number of messages to send")
	cmd.Flags().IntVar(&cfg.Burst, "burst", 10, "messages sent before the direction flips")
	cmd.Flags().IntVar(&cfg.MaxSkip, "max-skip", doubleratchet.DefaultMaxSkip, "skipped message keys a session may cache")
	cmd.Flags().IntVar(&cfg.MaxKeep, "max-keep", 0, "ratchet steps before a retired chain's keys expire (0 keeps them)")
	cmd.Flags().IntVar(&cfg.ReorderWindow, "reorder-window", 4, "datagrams buffered by the link before delivery")
	cmd.Flags().Float64Var(&cfg.Drop, "drop", 0.05, "probability that a datagram is lost")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", 1, "seed of the link's loss and reordering")
	return cmd
}

func runSimulation(cfg simConfig, c doubleratchet.Crypto, logger *slog.Logger) (simStats, error) {
	stats := simStats{Rejected: make(map[string]int)}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var rootKey doubleratchet.Key
	if _, err := io.ReadFull(rand.Reader, rootKey[:]); err != nil {
		return stats, err
	}
	defer rootKey.Wipe()

	bobPair, err := c.GenerateDH()
	if err != nil {
		return stats, err
	}
	opts := []doubleratchet.Option{
		doubleratchet.WithCrypto(c),
		doubleratchet.WithMaxSkip(cfg.MaxSkip),
		doubleratchet.WithMaxKeep(cfg.MaxKeep),
		doubleratchet.WithLogger(logger),
	}
	bob, err := doubleratchet.New(doubleratchet.Responder, rootKey, doubleratchet.InitialKeys{LocalPair: &bobPair}, opts...)
	bobPair.Wipe()
	if err != nil {
		return stats, err
	}
	defer bob.Close()
	alice, err := doubleratchet.New(doubleratchet.Initiator, rootKey, doubleratchet.InitialKeys{RemotePublic: bob.PublicKey()}, opts...)
	if err != nil {
		return stats, err
	}
	defer alice.Close()

	var (
		rnd     = mrand.New(mrand.NewSource(cfg.Seed))
		toBob   = newLink(rnd, cfg.Drop, cfg.ReorderWindow)
		toAlice = newLink(rnd, cfg.Drop, cfg.ReorderWindow)
		ad      = doubleratchet.AssociatedData("ratchetsim")
	)
	receive := func(to *doubleratchet.Session, data []byte) {
		var m doubleratchet.Message
		if err := m.UnmarshalBinary(data); err != nil {
			stats.Rejected[errorKind(err)]++
			return
		}
		if _, err := to.Decrypt(m, ad); err != nil {
			stats.Rejected[errorKind(err)]++
			return
		}
		stats.Delivered++
	}
	drain := func(l *link, to *doubleratchet.Session) {
		for _, data := range l.flush() {
			receive(to, data)
		}
	}

	for i := 0; i < cfg.Messages; i++ {
		from, to, out, back := alice, bob, toBob, toAlice
		if (i/cfg.Burst)%2 == 1 {
			from, to, out, back = bob, alice, toAlice, toBob
		}
		if i%cfg.Burst == 0 {
			drain(back, from)
		}

		m, err := from.Encrypt([]byte(fmt.Sprintf("message %d", i)), ad)
		if errors.Is(err, doubleratchet.ErrUninitializedSession) {
			// Bob can't answer before anything reached him.
			stats.NotReady++
			continue
		}
		if err != nil {
			return stats, err
		}
		data, err := m.MarshalBinary()
		if err != nil {
			return stats, err
		}
		stats.Sent++
		if out.send(data) {
			stats.Dropped++
			continue
		}
		if data, ok := out.next(); ok {
			receive(to, data)
		}
	}
	drain(toBob, bob)
	drain(toAlice, alice)

	stats.Pending = alice.SkippedCount() + bob.SkippedCount()
	return stats, nil
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, doubleratchet.ErrAuthentication):
		return "authentication"
	case errors.Is(err, doubleratchet.ErrSkipLimitExceeded):
		return "skip-limit"
	case errors.Is(err, doubleratchet.ErrReplayOrStale):
		return "replay-or-stale"
	case errors.Is(err, doubleratchet.ErrMalformedMessage):
		return "malformed"
	default:
		return "other"
	}
}

func printStats(w io.Writer, s simStats) {
	fmt.Fprintf(w, "sent:       %d\n", s.Sent)
	fmt.Fprintf(w, "not ready:  %d\n", s.NotReady)
	fmt.Fprintf(w, "dropped:    %d\n", s.Dropped)
	fmt.Fprintf(w, "delivered:  %d\n", s.Delivered)

	kinds := make([]string, 0, len(s.Rejected))
	for k := range s.Rejected {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "rejected:   %d (%s)\n", s.Rejected[k], k)
	}
	fmt.Fprintf(w, "keys left:  %d\n", s.Pending)
}
