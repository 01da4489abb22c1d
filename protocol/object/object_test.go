package object_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhleyai/git/protocol/object"
)

func TestTypeClassification(t *testing.T) {
	standard := []object.Type{object.TypeCommit, object.TypeTree, object.TypeBlob, object.TypeTag}
	for _, typ := range standard {
		require.True(t, typ.IsStandard(), "%s", typ)
		require.False(t, typ.IsDelta(), "%s", typ)
	}

	deltas := []object.Type{object.TypeOfsDelta, object.TypeRefDelta}
	for _, typ := range deltas {
		require.True(t, typ.IsDelta(), "%s", typ)
		require.False(t, typ.IsStandard(), "%s", typ)
	}

	require.False(t, object.TypeInvalid.IsStandard())
	require.False(t, object.TypeReserved.IsStandard())
}

func TestTypeBytes(t *testing.T) {
	require.Equal(t, []byte("commit"), object.TypeCommit.Bytes())
	require.Equal(t, []byte("tree"), object.TypeTree.Bytes())
	require.Equal(t, []byte("blob"), object.TypeBlob.Bytes())
	require.Equal(t, []byte("tag"), object.TypeTag.Bytes())
	require.Equal(t, []byte("unknown"), object.TypeInvalid.Bytes())
}
