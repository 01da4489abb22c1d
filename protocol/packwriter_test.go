package protocol_test

import (
	"bytes"
	"context"
	"crypto"
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhleyai/git/protocol"
	"github.com/zhleyai/git/protocol/hash"
	"github.com/zhleyai/git/protocol/object"
)

func TestWriteReadTypeAndSize(t *testing.T) {
	// Sizes around the 4-bit and 7-bit continuation boundaries.
	sizes := []int64{0, 1, 15, 16, 127, 128, 255, 256, 2047, 2048, 65535, 65536, 1 << 30}
	types := []object.Type{object.TypeCommit, object.TypeTree, object.TypeBlob, object.TypeTag, object.TypeOfsDelta, object.TypeRefDelta}

	for _, typ := range types {
		for _, size := range sizes {
			var buf bytes.Buffer
			protocol.WriteTypeAndSize(&buf, typ, size)

			gotType, gotSize, err := protocol.ReadTypeAndSize(&buf)
			require.NoError(t, err)
			require.Equal(t, typ, gotType, "type must round-trip for size %d", size)
			require.Equal(t, size, gotSize, "size %d must round-trip for type %s", size, typ)
			require.Zero(t, buf.Len(), "header must be consumed exactly")
		}
	}
}

func TestEmptyPack(t *testing.T) {
	header := []byte("PACK\x00\x00\x00\x02\x00\x00\x00\x00")
	sum := sha1.Sum(header)
	require.Equal(t, append(header, sum[:]...), protocol.EmptyPack)

	// It must also be readable.
	reader, err := protocol.ParsePackfile(protocol.EmptyPack)
	require.NoError(t, err)
	require.EqualValues(t, 0, reader.ObjectCount())
}

func TestBuildBlobObject(t *testing.T) {
	// Known id: SHA1("blob 4\x00test").
	obj, err := protocol.BuildBlobObject(crypto.SHA1, []byte("test"))
	require.NoError(t, err)
	require.Equal(t, object.TypeBlob, obj.Type)
	require.Equal(t, "30d74d258442c7c65512eafab474568dd706c430", obj.Hash.String())
}

func TestPackfileWriterDeduplicates(t *testing.T) {
	w := protocol.NewPackfileWriter(crypto.SHA1)

	first, err := w.AddBlob([]byte("same content"))
	require.NoError(t, err)
	second, err := w.AddBlob([]byte("same content"))
	require.NoError(t, err)

	require.True(t, first.Is(second))
	require.Equal(t, 1, w.ObjectCount())
}

func TestPackfileWriterRoundTrip(t *testing.T) {
	w := protocol.NewPackfileWriter(crypto.SHA1)

	blobID, err := w.AddBlob([]byte("file contents\n"))
	require.NoError(t, err)

	treeID, err := w.AddTree([]object.TreeEntry{
		{Mode: 0o100644, Name: "file.txt", Hash: blobID.String()},
	})
	require.NoError(t, err)

	author := object.Identity{Name: "Ada Lovelace", Email: "ada@example.com", Timestamp: 1700000000, Timezone: "+0100"}
	commitID, err := w.AddCommit(treeID, nil, author, author, "initial commit\n")
	require.NoError(t, err)

	tagID, err := w.AddTag(&object.Tag{
		Object:     commitID.String(),
		ObjectType: object.TypeCommit,
		Name:       "v1.0.0",
		Tagger:     author,
		Message:    "first release\n",
	})
	require.NoError(t, err)

	pack, err := w.WritePackfile()
	require.NoError(t, err)

	reader, err := protocol.ParsePackfile(pack)
	require.NoError(t, err)
	require.EqualValues(t, 4, reader.ObjectCount())

	objects, err := reader.ResolveObjects(nil)
	require.NoError(t, err)
	require.Len(t, objects, 4)

	byID := make(map[string]*protocol.PackfileObject, len(objects))
	for _, obj := range objects {
		byID[obj.Hash.String()] = obj
	}

	require.Equal(t, object.TypeBlob, byID[blobID.String()].Type)
	require.Equal(t, []byte("file contents\n"), byID[blobID.String()].Data)

	tree := byID[treeID.String()]
	require.Equal(t, object.TypeTree, tree.Type)
	require.Len(t, tree.Tree, 1)
	require.Equal(t, "file.txt", tree.Tree[0].Name)
	require.Equal(t, blobID.String(), tree.Tree[0].Hash)

	commit, err := object.ParseCommit(byID[commitID.String()].Data)
	require.NoError(t, err)
	require.Equal(t, treeID.String(), commit.Tree)
	require.Equal(t, "initial commit\n", commit.Message)
	require.EqualValues(t, 1700000000, commit.Author.Timestamp, "the embedded timestamp must survive the round trip")

	tag, err := object.ParseTag(byID[tagID.String()].Data)
	require.NoError(t, err)
	require.Equal(t, commitID.String(), tag.Object)
	require.Equal(t, "v1.0.0", tag.Name)
}

func TestWritePackfileToCancelled(t *testing.T) {
	w := protocol.NewPackfileWriter(crypto.SHA1)
	_, err := w.AddBlob([]byte("doomed"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	err = w.WritePackfileTo(ctx, &buf)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCreatePackRejectsDeltas(t *testing.T) {
	_, err := protocol.CreatePack(context.Background(), []*protocol.PackfileObject{
		{Type: object.TypeRefDelta, Data: []byte{0, 0}, Hash: hash.MustFromHex("30d74d258442c7c65512eafab474568dd706c430")},
	})
	require.ErrorIs(t, err, protocol.ErrNotStandardObject)
}

// similarBlobs builds n blobs sharing a large common body, the shape deltas
// thrive on. The body is incompressible noise so that delta savings are not
// masked by zlib doing the same job.
func similarBlobs(t *testing.T, n int) []*protocol.PackfileObject {
	t.Helper()
	body := make([]byte, 4096)
	state := uint32(42)
	for i := range body {
		state = state*1664525 + 1013904223
		body[i] = byte(state >> 24)
	}

	objects := make([]*protocol.PackfileObject, 0, n)
	for i := 0; i < n; i++ {
		content := append(bytes.Clone(body), byte('a'+i))
		obj, err := protocol.BuildBlobObject(crypto.SHA1, content)
		require.NoError(t, err)
		objects = append(objects, obj)
	}
	return objects
}

func TestCreatePackWithDeltasRoundTrip(t *testing.T) {
	objects := similarBlobs(t, 4)

	pack, err := protocol.CreatePackWithDeltas(context.Background(), objects)
	require.NoError(t, err)

	plain, err := protocol.CreatePack(context.Background(), objects)
	require.NoError(t, err)
	require.Less(t, len(pack), len(plain), "deltified pack should be smaller than the plain one")

	reader, err := protocol.ParsePackfile(pack)
	require.NoError(t, err)
	resolved, err := reader.ResolveObjects(nil)
	require.NoError(t, err)
	require.Len(t, resolved, len(objects))

	byID := make(map[string][]byte, len(resolved))
	for _, obj := range resolved {
		require.Equal(t, object.TypeBlob, obj.Type)
		byID[obj.Hash.String()] = obj.Data
	}
	for _, obj := range objects {
		require.Equal(t, obj.Data, byID[obj.Hash.String()])
	}
}

func TestCreateThinPack(t *testing.T) {
	objects := similarBlobs(t, 3)
	haves, objects := objects[:1], objects[1:]

	pack, err := protocol.CreateThinPack(context.Background(), objects, haves)
	require.NoError(t, err)

	t.Run("unresolvable without the base", func(t *testing.T) {
		reader, err := protocol.ParsePackfile(pack)
		require.NoError(t, err)
		_, err = reader.ResolveObjects(nil)
		require.ErrorIs(t, err, protocol.ErrMissingDeltaBase)
	})

	t.Run("resolves through the base lookup", func(t *testing.T) {
		lookup := func(id hash.Hash) (object.Type, []byte, bool) {
			for _, have := range haves {
				if have.Hash.Is(id) {
					return have.Type, have.Data, true
				}
			}
			return object.TypeInvalid, nil, false
		}

		reader, err := protocol.ParsePackfile(pack)
		require.NoError(t, err)
		resolved, err := reader.ResolveObjects(lookup)
		require.NoError(t, err)
		require.Len(t, resolved, len(objects))

		byID := make(map[string][]byte, len(resolved))
		for _, obj := range resolved {
			byID[obj.Hash.String()] = obj.Data
		}
		for _, obj := range objects {
			require.Equal(t, obj.Data, byID[obj.Hash.String()])
		}
	})
}
