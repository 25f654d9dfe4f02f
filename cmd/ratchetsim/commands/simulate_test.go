package commands

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fwcore/doubleratchet"
)

func TestRunSimulation_Lossless(t *testing.T) {
	// Arrange.
	cfg := simConfig{Messages: 60, Burst: 7, MaxSkip: 100, ReorderWindow: 1, Seed: 3}

	// Act.
	stats, err := runSimulation(cfg, doubleratchet.DefaultCrypto{}, nil)

	// Assert.
	require.Nil(t, err)
	require.Equal(t, 60, stats.Sent)
	require.Equal(t, 60, stats.Delivered)
	require.Zero(t, stats.Dropped)
	require.Zero(t, stats.NotReady)
	require.Empty(t, stats.Rejected)
	require.Zero(t, stats.Pending)
}

func TestRunSimulation_LossyReordering(t *testing.T) {
	for _, c := range []doubleratchet.Crypto{doubleratchet.DefaultCrypto{}, doubleratchet.CirclCrypto{}} {
		t.Run(fmt.Sprintf("%T", c), func(t *testing.T) {
			// Arrange.
			cfg := simConfig{Messages: 200, Burst: 10, MaxSkip: 1000, ReorderWindow: 5, Drop: 0.2, Seed: 42}

			// Act.
			stats, err := runSimulation(cfg, c, nil)

			// Assert.
			require.Nil(t, err)
			require.Empty(t, stats.Rejected)
			require.Equal(t, stats.Sent, stats.Delivered+stats.Dropped)
			require.Equal(t, cfg.Messages, stats.Sent+stats.NotReady)
			require.LessOrEqual(t, stats.Pending, uint(stats.Dropped))
		})
	}
}

func TestRunSimulation_TightSkipLimit(t *testing.T) {
	// Arrange.
	cfg := simConfig{Messages: 40, Burst: 40, MaxSkip: 2, ReorderWindow: 8, Seed: 7}

	// Act.
	stats, err := runSimulation(cfg, doubleratchet.DefaultCrypto{}, nil)

	// Assert.
	require.Nil(t, err)
	require.Equal(t, stats.Sent, stats.Delivered+stats.Rejected["skip-limit"])
	require.Positive(t, stats.Rejected["skip-limit"])
}

func TestLink(t *testing.T) {
	// Arrange.
	l := newLink(rand.New(rand.NewSource(1)), 0, 3)

	// Act.
	dropped := l.send([]byte{1})
	l.send([]byte{2})
	_, early := l.next()
	l.send([]byte{3})
	first, ok := l.next()
	rest := l.flush()

	// Assert.
	require.False(t, dropped)
	require.False(t, early)
	require.True(t, ok)
	require.Len(t, rest, 2)
	require.ElementsMatch(t, [][]byte{{1}, {2}, {3}}, append(rest, first))
	require.Empty(t, l.flush())
}

func TestLink_DropsEverything(t *testing.T) {
	l := newLink(rand.New(rand.NewSource(1)), 1, 1)

	require.True(t, l.send([]byte{1}))
	require.Empty(t, l.flush())
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		kind string
	}{
		{doubleratchet.ErrAuthentication, "authentication"},
		{fmt.Errorf("wrapped: %w", doubleratchet.ErrSkipLimitExceeded), "skip-limit"},
		{doubleratchet.ErrReplayOrStale, "replay-or-stale"},
		{doubleratchet.ErrMalformedMessage, "malformed"},
		{fmt.Errorf("boom"), "other"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.kind, errorKind(tt.err))
	}
}

func TestSimulateCmd(t *testing.T) {
	// Arrange.
	var (
		out bytes.Buffer
		cmd = simulateCmd()
	)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--messages", "12", "--burst", "4", "--drop", "0", "--reorder-window", "1"})

	// Act.
	err := cmd.Execute()

	// Assert.
	require.Nil(t, err)
	require.Contains(t, out.String(), "delivered:  12")
	require.Contains(t, out.String(), "keys left:  0")
}

func TestSimulateCmd_BadDrop(t *testing.T) {
	cmd := simulateCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--drop", "1.5"})

	require.NotNil(t, cmd.Execute())
}
