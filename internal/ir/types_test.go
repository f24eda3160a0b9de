package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeInterning(t *testing.T) {
	types := NewTypePool()

	assert.Equal(t, types.Uint(64), types.Uint(64))
	assert.NotEqual(t, types.Uint(64), types.Uint(32))

	s1 := types.Struct(types.Uint(64), types.Bool())
	s2 := types.Struct(types.Uint(64), types.Bool())
	assert.Equal(t, s1, s2)

	assert.Equal(t, types.Pointer(s1), types.Pointer(s2))
	assert.NotEqual(t, types.Pointer(s1), s1)
}

func TestScalarSizes(t *testing.T) {
	types := NewTypePool()

	assert.Equal(t, 0, types.SizeOf(types.Unit()))
	assert.Equal(t, 1, types.SizeOf(types.Bool()))
	assert.Equal(t, 1, types.SizeOf(types.Uint(8)))
	assert.Equal(t, 8, types.SizeOf(types.Uint(64)))
	assert.Equal(t, 32, types.SizeOf(types.B256()))
	assert.Equal(t, 8, types.SizeOf(types.Pointer(types.B256())))
	assert.Equal(t, 13, types.SizeOf(types.Blob(13)))
}

func TestAggregateLayout(t *testing.T) {
	types := NewTypePool()

	// Fields land on word boundaries regardless of their own size.
	s := types.Struct(types.Bool(), types.Uint(64), types.Uint(8))
	assert.Equal(t, 24, types.SizeOf(s))

	arr := types.Array(types.Bool(), 4)
	assert.Equal(t, 32, types.SizeOf(arr))

	// Discriminant word plus the widest variant.
	e := types.Enum(types.Uint(64), types.B256())
	assert.Equal(t, 8+32, types.SizeOf(e))
}

func TestElemOffset(t *testing.T) {
	types := NewTypePool()

	inner := types.Struct(types.Uint(64), types.Uint(64))
	outer := types.Struct(types.B256(), inner)

	off, elem, err := types.ElemOffset(outer, []int{1, 1})
	require.NoError(t, err)
	assert.Equal(t, 32+8, off)
	assert.Equal(t, types.Uint(64), elem)

	arr := types.Array(inner, 3)
	off, elem, err = types.ElemOffset(arr, []int{2, 0})
	require.NoError(t, err)
	assert.Equal(t, 2*16, off)
	assert.Equal(t, types.Uint(64), elem)

	_, _, err = types.ElemOffset(outer, []int{2})
	assert.Error(t, err)
	_, _, err = types.ElemOffset(arr, []int{3})
	assert.Error(t, err)
	_, _, err = types.ElemOffset(types.Uint(64), []int{0})
	assert.Error(t, err)
}

func TestTypeString(t *testing.T) {
	types := NewTypePool()

	assert.Equal(t, "u64", types.String(types.Uint(64)))
	assert.Equal(t, "ptr b256", types.String(types.Pointer(types.B256())))
	assert.Equal(t, "[u8; 4]", types.String(types.Array(types.Uint(8), 4)))
	assert.Equal(t, "{ u64, bool }", types.String(types.Struct(types.Uint(64), types.Bool())))
	assert.Equal(t, "enum { u64, b256 }", types.String(types.Enum(types.Uint(64), types.B256())))
	assert.Equal(t, "blob<12>", types.String(types.Blob(12)))
}

func TestIsAggregate(t *testing.T) {
	types := NewTypePool()

	assert.False(t, types.IsAggregate(types.Uint(64)))
	assert.False(t, types.IsAggregate(types.Pointer(types.Struct(types.Uint(64)))))
	assert.True(t, types.IsAggregate(types.Struct(types.Uint(64))))
	assert.True(t, types.IsAggregate(types.Array(types.Uint(64), 2)))
	assert.True(t, types.IsAggregate(types.Enum(types.Uint(64))))

	// Blobs and wide integers stay opaque scalars.
	assert.False(t, types.IsAggregate(types.Blob(4)))
	assert.False(t, types.IsAggregate(types.B256()))
}
