package doubleratchet

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
)

func TestSession_MarshalRestore(t *testing.T) {
	// Arrange.
	var (
		alice, bob = newSessions(t, WithMaxKeep(3))
		h          = SessionTestHelper{t, alice, bob}
	)
	h.AliceToBob("hi", nil)
	h.BobToAlice("hello", nil)
	m0, _ := alice.Encrypt([]byte("delayed"), nil)
	m1, _ := alice.Encrypt([]byte("on time"), nil)
	_, err := bob.Decrypt(m1, nil)
	require.Nil(t, err)

	// Act.
	data, err := bob.MarshalBinary()
	require.Nil(t, err)
	restored, err := Restore(data)

	// Assert.
	require.Nil(t, err)
	require.Equal(t, bob.ID(), restored.ID())
	require.Equal(t, bob.Role(), restored.Role())
	require.Equal(t, bob.st, restored.st)
	require.Equal(t, bob.mkSkipped.All(), restored.mkSkipped.All())
	require.Equal(t, bob.retired, restored.retired)
	require.EqualValues(t, 3, restored.maxKeep)
	require.EqualValues(t, DefaultMaxSkip, restored.maxSkip)

	d, err := restored.Decrypt(m0, nil)
	require.Nil(t, err)
	require.Equal(t, []byte("delayed"), d)
	transfer(t, restored, alice, "from the restored side", nil)
	transfer(t, alice, restored, "and back", nil)
}

func TestRestore_OptionsOverrideStoredLimits(t *testing.T) {
	// Arrange.
	alice, _ := newSessions(t, WithMaxSkip(10))
	data, err := alice.MarshalBinary()
	require.Nil(t, err)

	// Act.
	restored, err := Restore(data, WithMaxSkip(20), WithCrypto(CirclCrypto{}))

	// Assert.
	require.Nil(t, err)
	require.EqualValues(t, 20, restored.maxSkip)
	require.Equal(t, CirclCrypto{}, restored.crypto)
}

func TestRestore_Garbage(t *testing.T) {
	// Act.
	_, err := Restore([]byte{0xff, 0x00, 0x13})

	// Assert.
	require.NotNil(t, err)
}

func TestRestore_InvalidKeyMaterial(t *testing.T) {
	alice, _ := newSessions(t)
	data, err := alice.MarshalBinary()
	require.Nil(t, err)

	tests := []struct {
		name  string
		field int
		value []byte
	}{
		{"truncated private key", 6, []byte{1, 2, 3}},
		{"empty root key", 4, []byte{}},
		{"zero root key", 4, make([]byte, 32)},
		{"oversized public key", 7, make([]byte, 33)},
		{"zero sending chain key", 8, make([]byte, 32)},
		{"initiator without remote key", 5, make([]byte, 32)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange.
			var fields map[int]interface{}
			require.Nil(t, cbor.Unmarshal(data, &fields))
			fields[tt.field] = tt.value
			corrupted, err := cbor.Marshal(fields)
			require.Nil(t, err)

			// Act.
			_, err = Restore(corrupted)

			// Assert.
			require.NotNil(t, err)
		})
	}
}

func TestSession_MarshalRestore_FreshResponder(t *testing.T) {
	// Arrange.
	alice, bob := newSessions(t)
	data, err := bob.MarshalBinary()
	require.Nil(t, err)

	// Act.
	restored, err := Restore(data)

	// Assert.
	require.Nil(t, err)
	transfer(t, alice, restored, "first", nil)
}

func TestSnapshotEncMode(t *testing.T) {
	require.NotNil(t, snapshotEncMode)
}
