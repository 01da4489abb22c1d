package protocol

import (
	"bytes"
	"context"
	"crypto"
	"crypto/sha1" //nolint:gosec // Git packs are addressed by SHA-1.
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sort"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/sync/errgroup"

	"github.com/zhleyai/git/protocol/hash"
	"github.com/zhleyai/git/protocol/object"
)

// ErrNotStandardObject is returned when a pack writer is given an object
// whose type cannot be written standalone, e.g. an unresolved delta.
var ErrNotStandardObject = errors.New("object type cannot be written to a pack")

// EmptyPack is a syntactically complete pack containing zero objects.
// receive-pack requires a pack section even for ref-only updates.
var EmptyPack = func() []byte {
	header := []byte("PACK\x00\x00\x00\x02\x00\x00\x00\x00")
	sum := sha1.Sum(header) //nolint:gosec
	return append(header, sum[:]...)
}()

// PackfileWriter accumulates objects and serializes them as a version 2 pack:
// the "PACK" magic, a big-endian version and object count, one type+size
// header and zlib stream per object, and a SHA-1 trailer over everything
// written before it.
//
// Objects are deduplicated by id; adding the same blob twice stores it once.
type PackfileWriter struct {
	algo    crypto.Hash
	objects []*PackfileObject
	index   map[string]struct{}
}

// NewPackfileWriter creates a writer that addresses objects with algo.
// Git interoperability requires crypto.SHA1.
func NewPackfileWriter(algo crypto.Hash) *PackfileWriter {
	return &PackfileWriter{
		algo:  algo,
		index: make(map[string]struct{}),
	}
}

// AddObject adds an already-built object to the pack. Duplicates (by id) are
// dropped silently.
func (w *PackfileWriter) AddObject(obj *PackfileObject) {
	if _, ok := w.index[obj.Hash.String()]; ok {
		return
	}
	w.index[obj.Hash.String()] = struct{}{}
	w.objects = append(w.objects, obj)
}

// ObjectCount returns the number of distinct objects added so far.
func (w *PackfileWriter) ObjectCount() int { return len(w.objects) }

// AddBlob hashes content as a blob and adds it to the pack.
func (w *PackfileWriter) AddBlob(content []byte) (hash.Hash, error) {
	obj, err := BuildBlobObject(w.algo, content)
	if err != nil {
		return nil, err
	}
	w.AddObject(obj)
	return obj.Hash, nil
}

// AddTree builds a tree object from entries (sorting them into canonical
// order first) and adds it to the pack.
func (w *PackfileWriter) AddTree(entries []object.TreeEntry) (hash.Hash, error) {
	obj, err := BuildTreeObject(w.algo, entries)
	if err != nil {
		return nil, err
	}
	w.AddObject(obj)
	return obj.Hash, nil
}

// AddCommit builds a commit object and adds it to the pack. parents may be
// empty for a root commit.
func (w *PackfileWriter) AddCommit(tree hash.Hash, parents []hash.Hash, author, committer object.Identity, message string) (hash.Hash, error) {
	commit := &object.Commit{
		Tree:      tree.String(),
		Author:    author,
		Committer: committer,
		Message:   message,
	}
	for _, parent := range parents {
		commit.Parents = append(commit.Parents, parent.String())
	}

	obj, err := BuildCommitObject(w.algo, commit)
	if err != nil {
		return nil, err
	}
	w.AddObject(obj)
	return obj.Hash, nil
}

// AddTag builds an annotated tag object and adds it to the pack.
func (w *PackfileWriter) AddTag(tag *object.Tag) (hash.Hash, error) {
	obj, err := BuildTagObject(w.algo, tag)
	if err != nil {
		return nil, err
	}
	w.AddObject(obj)
	return obj.Hash, nil
}

// WritePackfile serializes the accumulated objects into one buffer.
func (w *PackfileWriter) WritePackfile() ([]byte, error) {
	var buf bytes.Buffer
	if err := w.WritePackfileTo(context.Background(), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WritePackfileTo streams the pack to out one object at a time, checking ctx
// between objects so the hosting transport can cancel or back-pressure a
// large pack mid-stream. The trailer covers exactly the bytes written to out.
func (w *PackfileWriter) WritePackfileTo(ctx context.Context, out io.Writer) error {
	trailer := sha1.New() //nolint:gosec
	sink := io.MultiWriter(out, trailer)

	var header [packHeaderSize]byte
	copy(header[:4], "PACK")
	binary.BigEndian.PutUint32(header[4:8], 2)
	binary.BigEndian.PutUint32(header[8:12], uint32(len(w.objects)))
	if _, err := sink.Write(header[:]); err != nil {
		return fmt.Errorf("writing pack header: %w", err)
	}

	for _, obj := range w.objects {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writePackObject(sink, obj); err != nil {
			return fmt.Errorf("writing object %s: %w", obj.Hash, err)
		}
	}

	if _, err := out.Write(trailer.Sum(nil)); err != nil {
		return fmt.Errorf("writing pack trailer: %w", err)
	}
	return nil
}

func writePackObject(out io.Writer, obj *PackfileObject) error {
	switch {
	case obj.Type.IsStandard():
		// No extra header.
	case obj.Type == object.TypeRefDelta:
		// The 20-byte base id follows the size header.
	default:
		return fmt.Errorf("%w: %s", ErrNotStandardObject, obj.Type)
	}

	var buf bytes.Buffer
	WriteTypeAndSize(&buf, obj.Type, int64(len(obj.Data)))
	if obj.Type == object.TypeRefDelta {
		buf.Write(obj.BaseHash)
	}
	if _, err := out.Write(buf.Bytes()); err != nil {
		return err
	}

	zw := zlib.NewWriter(out)
	if _, err := zw.Write(obj.Data); err != nil {
		return err
	}
	return zw.Close()
}

// WriteTypeAndSize emits an object's type+size header: the 3-bit type above
// the low 4 size bits in the first byte, then 7 size bits per continuation
// byte, little-endian. Decoding the result recovers the exact (type, size)
// pair for any size.
func WriteTypeAndSize(buf *bytes.Buffer, t object.Type, size int64) {
	b := byte(t)<<4 | byte(size&0b1111)
	size >>= 4
	for size > 0 {
		buf.WriteByte(b | 0x80)
		b = byte(size & 0x7f)
		size >>= 7
	}
	buf.WriteByte(b)
}

// ReadTypeAndSize decodes an object's type+size header from r. It is the
// exact inverse of WriteTypeAndSize: the first byte carries a 3-bit type
// above the low 4 size bits, and each continuation byte contributes 7 more
// size bits in little-endian order.
func ReadTypeAndSize(r io.ByteReader) (object.Type, int64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return object.TypeInvalid, 0, err
	}

	t := object.Type((b >> 4) & 0b111)
	size := int64(b & 0b1111)
	shift := 4
	for b&0x80 == 0x80 {
		if b, err = r.ReadByte(); err != nil {
			return t, size, err
		}
		size |= int64(b&0x7f) << shift
		shift += 7
	}
	return t, size, nil
}

// CreatePack serializes objects as a plain, non-delta pack.
func CreatePack(ctx context.Context, objects []*PackfileObject) ([]byte, error) {
	w := NewPackfileWriter(crypto.SHA1)
	for _, obj := range objects {
		if !obj.Type.IsStandard() {
			return nil, fmt.Errorf("%w: %s", ErrNotStandardObject, obj.Type)
		}
		w.AddObject(obj)
	}

	var buf bytes.Buffer
	if err := w.WritePackfileTo(ctx, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// deltaCandidate pairs an object with the base it may be deltified against.
type deltaCandidate struct {
	obj  *PackfileObject
	base *PackfileObject
	// delta is set once the trial deltification deems it worthwhile.
	delta []byte
}

// CreatePackWithDeltas serializes objects as a pack in which similar objects
// are stored as REF_DELTA entries against in-pack bases.
//
// Base selection: objects are grouped by type and size-sorted, and each
// object is trial-deltified against its predecessor in that order, the same
// neighbour heuristic git's own pack-objects seeds its search with. A delta
// replaces the full object only when it is smaller than half the original,
// and chains are kept one level deep: a delta never serves as another
// object's base. Trial deltification fans out across CPUs.
func CreatePackWithDeltas(ctx context.Context, objects []*PackfileObject) ([]byte, error) {
	for _, obj := range objects {
		if !obj.Type.IsStandard() {
			return nil, fmt.Errorf("%w: %s", ErrNotStandardObject, obj.Type)
		}
	}

	sorted := make([]*PackfileObject, len(objects))
	copy(sorted, objects)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Type != sorted[j].Type {
			return sorted[i].Type < sorted[j].Type
		}
		return len(sorted[i].Data) > len(sorted[j].Data)
	})

	var candidates []*deltaCandidate
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Type == sorted[i-1].Type {
			candidates = append(candidates, &deltaCandidate{obj: sorted[i], base: sorted[i-1]})
		}
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, cand := range candidates {
		g.Go(func() error {
			delta := BuildDelta(cand.base.Data, cand.obj.Data)
			if len(delta) < len(cand.obj.Data)/2 {
				cand.delta = delta
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	deltified := make(map[string][]byte, len(candidates))
	bases := make(map[string]hash.Hash, len(candidates))
	for _, cand := range candidates {
		// Chain depth 1: skip when the base itself got deltified.
		if cand.delta == nil {
			continue
		}
		if _, baseIsDelta := deltified[cand.base.Hash.String()]; baseIsDelta {
			continue
		}
		deltified[cand.obj.Hash.String()] = cand.delta
		bases[cand.obj.Hash.String()] = cand.base.Hash
	}

	w := NewPackfileWriter(crypto.SHA1)
	for _, obj := range sorted {
		if delta, ok := deltified[obj.Hash.String()]; ok {
			w.AddObject(&PackfileObject{
				Type:     object.TypeRefDelta,
				Data:     delta,
				Hash:     obj.Hash,
				BaseHash: bases[obj.Hash.String()],
			})
			continue
		}
		w.AddObject(obj)
	}

	var buf bytes.Buffer
	if err := w.WritePackfileTo(ctx, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CreateThinPack serializes objects as a pack whose delta bases may lie
// outside the pack entirely: each object is trial-deltified against same-type
// objects the peer is known to have, and stored as a REF_DELTA naming the
// external base when that wins. The result can only be read back with a
// BaseLookup that can produce the bases, which is the point of a thin pack.
func CreateThinPack(ctx context.Context, objects, haves []*PackfileObject) ([]byte, error) {
	w := NewPackfileWriter(crypto.SHA1)

	for _, obj := range objects {
		if !obj.Type.IsStandard() {
			return nil, fmt.Errorf("%w: %s", ErrNotStandardObject, obj.Type)
		}

		var best []byte
		var bestBase hash.Hash
		for _, have := range haves {
			if have.Type != obj.Type {
				continue
			}
			delta := BuildDelta(have.Data, obj.Data)
			if len(delta) < len(obj.Data)/2 && (best == nil || len(delta) < len(best)) {
				best = delta
				bestBase = have.Hash
			}
		}

		if best != nil {
			w.AddObject(&PackfileObject{
				Type:     object.TypeRefDelta,
				Data:     best,
				Hash:     obj.Hash,
				BaseHash: bestBase,
			})
			continue
		}
		w.AddObject(obj)
	}

	var buf bytes.Buffer
	if err := w.WritePackfileTo(ctx, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildBlobObject hashes content as a blob.
func BuildBlobObject(algo crypto.Hash, content []byte) (*PackfileObject, error) {
	id, err := hash.Object(algo, object.TypeBlob, content)
	if err != nil {
		return nil, err
	}
	return &PackfileObject{Type: object.TypeBlob, Data: content, Hash: id}, nil
}

// BuildTreeObject sorts entries into canonical order, serializes and hashes
// them as a tree.
func BuildTreeObject(algo crypto.Hash, entries []object.TreeEntry) (*PackfileObject, error) {
	sorted := make([]object.TreeEntry, len(entries))
	copy(sorted, entries)
	object.SortTreeEntries(sorted)

	data, err := object.SerializeTree(sorted)
	if err != nil {
		return nil, err
	}
	id, err := hash.Object(algo, object.TypeTree, data)
	if err != nil {
		return nil, err
	}
	return &PackfileObject{Type: object.TypeTree, Data: data, Hash: id, Tree: sorted}, nil
}

// BuildCommitObject serializes and hashes a commit.
func BuildCommitObject(algo crypto.Hash, commit *object.Commit) (*PackfileObject, error) {
	data := object.SerializeCommit(commit)
	id, err := hash.Object(algo, object.TypeCommit, data)
	if err != nil {
		return nil, err
	}
	return &PackfileObject{Type: object.TypeCommit, Data: data, Hash: id}, nil
}

// BuildTagObject serializes and hashes an annotated tag.
func BuildTagObject(algo crypto.Hash, tag *object.Tag) (*PackfileObject, error) {
	data := object.SerializeTag(tag)
	id, err := hash.Object(algo, object.TypeTag, data)
	if err != nil {
		return nil, err
	}
	return &PackfileObject{Type: object.TypeTag, Data: data, Hash: id}, nil
}
