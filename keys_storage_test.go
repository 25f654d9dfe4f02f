package doubleratchet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	pubKey  = Key{0xe3, 0xbe, 0xb9, 0x4e, 0x70, 0x17, 0x37, 0xc, 0x1, 0x8f, 0xa9, 0x7e, 0xef, 0x4, 0xfb, 0x23, 0xac, 0xea, 0x28, 0xf7, 0xa9, 0x56, 0xcc, 0x1d, 0x46, 0xf3, 0xb5, 0x1d, 0x7d, 0x7d, 0x5e, 0x2c}
	pubKey2 = Key{0x6, 0x45, 0x36, 0xa5, 0xed, 0xa0, 0xae, 0xaf, 0x62, 0x4f, 0x20, 0x63, 0x3b, 0x8e, 0xc1, 0x7, 0xe8, 0xe7, 0x45, 0x1, 0x8d, 0x14, 0xdb, 0xf8, 0x9, 0x51, 0x3c, 0x5f, 0xbd, 0x33, 0x7, 0x44}
	mk      = fixtureKey
)

func TestKeysStorageInMemory_Get(t *testing.T) {
	// Arrange.
	ks := &KeysStorageInMemory{}

	// Act.
	_, ok := ks.Get(pubKey, 0)

	// Assert.
	require.False(t, ok)
}

func TestKeysStorageInMemory_Count(t *testing.T) {
	// Arrange.
	ks := &KeysStorageInMemory{}

	// Act.
	cnt := ks.Count(pubKey)

	// Assert.
	require.EqualValues(t, 0, cnt)
	require.EqualValues(t, 0, ks.Len())
}

func TestKeysStorageInMemory_Delete(t *testing.T) {
	// Arrange.
	ks := &KeysStorageInMemory{}

	// Act and assert.
	ks.DeleteMk(pubKey, 0)
	ks.DeletePk(pubKey)
}

func TestKeysStorageInMemory_Flow(t *testing.T) {
	// Arrange.
	ks := &KeysStorageInMemory{}

	t.Run("put and get", func(t *testing.T) {
		// Act.
		err := ks.Put(pubKey, 0, mk)
		k, ok := ks.Get(pubKey, 0)

		// Assert.
		require.Nil(t, err)
		require.True(t, ok)
		require.Equal(t, mk, k)
	})

	t.Run("get non-existent", func(t *testing.T) {
		// Act.
		_, ok := ks.Get(pubKey, 1)

		// Assert.
		require.False(t, ok)
	})

	t.Run("count", func(t *testing.T) {
		// Act.
		cnt := ks.Count(pubKey)

		// Assert.
		require.EqualValues(t, 1, cnt)
		require.EqualValues(t, 1, ks.Len())
	})

	t.Run("put existing doesn't grow", func(t *testing.T) {
		// Act.
		err := ks.Put(pubKey, 0, mk)

		// Assert.
		require.Nil(t, err)
		require.EqualValues(t, 1, ks.Len())
	})

	t.Run("delete non-existent", func(t *testing.T) {
		// Act.
		ks.DeleteMk(pubKey, 1)
		cnt := ks.Count(pubKey)

		// Assert.
		require.EqualValues(t, 1, cnt)
	})

	t.Run("delete existing", func(t *testing.T) {
		// Act.
		ks.DeleteMk(pubKey, 0)
		cnt := ks.Count(pubKey)

		// Assert.
		require.EqualValues(t, 0, cnt)
		require.EqualValues(t, 0, ks.Len())
	})
}

func TestKeysStorageInMemory_LimitRejectsInsteadOfEvicting(t *testing.T) {
	// Arrange.
	ks := NewKeysStorageInMemory(2)
	require.Nil(t, ks.Put(pubKey, 0, mk))
	require.Nil(t, ks.Put(pubKey2, 0, mk))

	// Act.
	err := ks.Put(pubKey, 1, mk)

	// Assert.
	require.ErrorIs(t, err, ErrSkipLimitExceeded)
	require.EqualValues(t, 2, ks.Len())
	_, ok := ks.Get(pubKey, 0)
	require.True(t, ok)
	_, ok = ks.Get(pubKey2, 0)
	require.True(t, ok)
}

func TestKeysStorageInMemory_DeletePk(t *testing.T) {
	// Arrange.
	ks := &KeysStorageInMemory{}
	require.Nil(t, ks.Put(pubKey, 0, mk))
	require.Nil(t, ks.Put(pubKey, 1, mk))
	require.Nil(t, ks.Put(pubKey2, 7, mk))

	// Act.
	ks.DeletePk(pubKey)

	// Assert.
	require.EqualValues(t, 0, ks.Count(pubKey))
	require.EqualValues(t, 1, ks.Len())
	require.Equal(t, map[Key]map[uint32]Key{pubKey2: {7: mk}}, ks.All())
}

func TestKeysStorageInMemory_Wipe(t *testing.T) {
	// Arrange.
	ks := &KeysStorageInMemory{}
	require.Nil(t, ks.Put(pubKey, 0, mk))
	require.Nil(t, ks.Put(pubKey2, 3, mk))

	// Act.
	ks.Wipe()

	// Assert.
	require.EqualValues(t, 0, ks.Len())
	require.Empty(t, ks.All())
}

func TestKeysStorageInMemory_PutReplacesExisting(t *testing.T) {
	// Arrange.
	ks := NewKeysStorageInMemory(1)
	require.Nil(t, ks.Put(pubKey, 0, mk))

	// Act.
	err := ks.Put(pubKey, 0, pubKey2)

	// Assert.
	require.Nil(t, err)
	require.EqualValues(t, 1, ks.Len())
	got, ok := ks.Get(pubKey, 0)
	require.True(t, ok)
	require.Equal(t, pubKey2, got)
}
