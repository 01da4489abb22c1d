package protocol

import (
	"bytes"
	"crypto"
	"crypto/sha1" //nolint:gosec // Git packs are addressed by SHA-1.
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/zhleyai/git/protocol/hash"
	"github.com/zhleyai/git/protocol/object"
)

var (
	ErrNoPackfileSignature        = errors.New("the given payload has no packfile signature")
	ErrUnsupportedPackfileVersion = errors.New("the version of the packfile payload is unsupported")
	ErrUnsupportedObjectType      = errors.New("the type of the object is unsupported")
	ErrInflatedDataIncorrectSize  = errors.New("the data is the wrong size post-inflation")
	ErrTruncatedPackfile          = errors.New("the packfile payload is truncated")
	ErrMissingDeltaBase           = errors.New("the delta's base object cannot be found")
)

// MaxUnpackedObjectSize is the maximum size of an unpacked object.
const MaxUnpackedObjectSize = 10 * 1024 * 1024

const (
	packHeaderSize  = 12
	packTrailerSize = 20
)

// PackfileObject is one object read from a pack.
type PackfileObject struct {
	// The type of the object. 3-bit field on the wire.
	Type object.Type
	// The data, uncompressed. If Type is one of object.TypeRefDelta and
	// object.TypeOfsDelta, this is a delta instruction stream, not object
	// content.
	Data []byte

	// Hash is the object's id. It is computed for the four standard types;
	// delta entries have no id of their own until resolved.
	Hash hash.Hash
	// Offset is the position of the object's header within the pack,
	// counted from the "PACK" magic. OFS_DELTA entries identify their base
	// by subtracting BaseRelativeOffset from their own Offset.
	Offset int64

	// If Type == object.TypeRefDelta, the id of the base object, which may
	// lie outside this pack (a "thin" pack).
	BaseHash hash.Hash
	// If Type == object.TypeOfsDelta, the backward distance to the base
	// object's header.
	BaseRelativeOffset int64
	// If Type == object.TypeTree, the decoded entries.
	Tree []object.TreeEntry
}

// A PackfileReader reads the objects of a verified pack one at a time.
//
// The wire format is defined at https://git-scm.com/docs/pack-format:
//   - 4-byte signature: []byte("PACK")
//   - 4-byte version number (big-endian; this implementation accepts 2)
//   - 4-byte number of objects contained in the pack (big-endian)
//   - that many object records
//   - a 20-byte SHA-1 trailer over every preceding byte
//
// Each object record is an n-byte type+length header (3-bit type,
// 4+(n-1)*7-bit little-endian length), then for OFS_DELTA a variable-length
// backward offset, for REF_DELTA a raw 20-byte base id, and finally the
// zlib-compressed data. The compressed stream's boundary is tracked by the
// decompressor itself; nothing in the record says how long it is.
type PackfileReader struct {
	reader           *bytes.Reader
	bodyLen          int
	version          uint32
	objectCount      uint32
	remainingObjects uint32

	// State that shouldn't be set when constructed.
	err error
}

// ParsePackfile verifies the pack's checksum and header and returns a reader
// over its objects.
//
// The trailing 20 bytes are the SHA-1 of everything before them; a pack whose
// checksum does not match is rejected outright, before any object in it is
// looked at. A corrupt pack must never be partially trusted.
func ParsePackfile(payload []byte) (*PackfileReader, error) {
	if len(payload) < packHeaderSize+packTrailerSize {
		return nil, fmt.Errorf("%w: %d bytes cannot hold a header and trailer", ErrTruncatedPackfile, len(payload))
	}

	body, trailer := payload[:len(payload)-packTrailerSize], payload[len(payload)-packTrailerSize:]
	computed := sha1.Sum(body) //nolint:gosec
	if !bytes.Equal(computed[:], trailer) {
		return nil, &ChecksumMismatchError{
			Expected: hex.EncodeToString(trailer),
			Actual:   hex.EncodeToString(computed[:]),
		}
	}

	if !bytes.Equal(body[:4], []byte("PACK")) {
		return nil, ErrNoPackfileSignature
	}

	version := binary.BigEndian.Uint32(body[4:8])
	if version != 2 {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedPackfileVersion, version)
	}

	objectCount := binary.BigEndian.Uint32(body[8:12])

	return &PackfileReader{
		reader:           bytes.NewReader(body[packHeaderSize:]),
		bodyLen:          len(body) - packHeaderSize,
		version:          version,
		objectCount:      objectCount,
		remainingObjects: objectCount,
	}, nil
}

// Version returns the pack's declared version.
func (p *PackfileReader) Version() uint32 { return p.version }

// ObjectCount returns the number of objects the header declares.
func (p *PackfileReader) ObjectCount() uint32 { return p.objectCount }

// ReadObject reads the next object from the packfile. When all declared
// objects have been read, it returns (nil, io.EOF). If an error is ever
// returned, the reader is tainted and will not read more objects.
//
// This function is not concurrency-safe. Objects returned are no longer owned
// by the reader; you can pass them around goroutines freely.
func (p *PackfileReader) ReadObject() (*PackfileObject, error) {
	if p.err != nil {
		return nil, fmt.Errorf("ReadObject called after error returned: %w", p.err)
	}
	if p.remainingObjects == 0 {
		return nil, io.EOF
	}
	p.remainingObjects--

	obj, err := p.readObject()
	if err != nil {
		p.err = err
		return nil, err
	}
	return obj, nil
}

func (p *PackfileReader) readObject() (*PackfileObject, error) {
	obj := &PackfileObject{
		Offset: packHeaderSize + int64(p.bodyLen-p.reader.Len()),
	}

	t, size, err := ReadTypeAndSize(p.reader)
	if err != nil {
		return nil, eofIsUnexpected(err)
	}
	obj.Type = t
	if size > MaxUnpackedObjectSize {
		return nil, fmt.Errorf("object of %d bytes exceeds the %d byte limit", size, MaxUnpackedObjectSize)
	}

	switch obj.Type {
	case object.TypeBlob, object.TypeCommit, object.TypeTag, object.TypeTree:
		if obj.Data, err = p.inflate(size); err != nil {
			return nil, err
		}
		if obj.Hash, err = hash.Object(crypto.SHA1, obj.Type, obj.Data); err != nil {
			return nil, err
		}
		if obj.Type == object.TypeTree {
			if obj.Tree, err = object.ParseTree(obj.Data); err != nil {
				return nil, err
			}
		}

	case object.TypeOfsDelta:
		// A variable-length backward offset to the base's header. The
		// folding is not a plain varint: each continuation adds one to the
		// accumulated value before shifting, so that multi-byte encodings
		// do not overlap single-byte ones.
		b, err := p.reader.ReadByte()
		if err != nil {
			return nil, eofIsUnexpected(err)
		}
		offset := int64(b & 0x7f)
		for b&0x80 != 0 {
			if b, err = p.reader.ReadByte(); err != nil {
				return nil, eofIsUnexpected(err)
			}
			offset = ((offset + 1) << 7) | int64(b&0x7f)
		}
		obj.BaseRelativeOffset = offset
		if obj.BaseRelativeOffset >= obj.Offset {
			return nil, fmt.Errorf("%w: offset %d reaches before the pack start", ErrMissingDeltaBase, offset)
		}
		if obj.Data, err = p.inflate(size); err != nil {
			return nil, err
		}

	case object.TypeRefDelta:
		var ref [packTrailerSize]byte
		if _, err = io.ReadFull(p.reader, ref[:]); err != nil {
			return nil, eofIsUnexpected(err)
		}
		obj.BaseHash = hash.Hash(bytes.Clone(ref[:]))
		if obj.Data, err = p.inflate(size); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("%w (%s)", ErrUnsupportedObjectType, obj.Type)
	}

	return obj, nil
}

// inflate reads exactly one zlib stream from the reader. The underlying
// *bytes.Reader is an io.ByteReader, so the decompressor consumes only the
// stream's own bytes and the cursor lands exactly on the next object's
// header. Treating "the rest of the buffer" as one object's payload would
// only ever work for single-object packs.
func (p *PackfileReader) inflate(declared int64) ([]byte, error) {
	zr, err := zlib.NewReader(p.reader)
	if err != nil {
		return nil, eofIsUnexpected(err)
	}
	defer zr.Close()

	var data bytes.Buffer
	data.Grow(int(declared))
	if _, err := io.Copy(&data, io.LimitReader(zr, MaxUnpackedObjectSize)); err != nil {
		return nil, eofIsUnexpected(err)
	}

	if int64(data.Len()) != declared {
		return nil, fmt.Errorf("%w: inflated %d bytes, header declared %d", ErrInflatedDataIncorrectSize, data.Len(), declared)
	}

	return data.Bytes(), nil
}

// BaseLookup resolves a REF_DELTA base that is not part of the pack, as
// happens with thin packs. It returns the base's type and full content.
type BaseLookup func(id hash.Hash) (object.Type, []byte, bool)

// ResolveObjects drains the reader and resolves every delta entry to its full
// object. In-pack bases are found by offset (OFS_DELTA) or id (REF_DELTA);
// bases outside the pack are resolved through lookup, which may be nil when
// thin packs are not expected. Delta chains are followed to any depth.
func (p *PackfileReader) ResolveObjects(lookup BaseLookup) ([]*PackfileObject, error) {
	var raw []*PackfileObject
	for {
		obj, err := p.ReadObject()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		raw = append(raw, obj)
	}

	byOffset := make(map[int64]*PackfileObject, len(raw))
	byID := make(map[string]*PackfileObject, len(raw))
	for _, obj := range raw {
		byOffset[obj.Offset] = obj
		if len(obj.Hash) > 0 {
			byID[obj.Hash.String()] = obj
		}
	}

	// Deltas may chain onto other deltas, so keep passing over the
	// unresolved ones as long as a pass resolves something.
	resolved := make([]*PackfileObject, 0, len(raw))
	pending := raw
	for len(pending) > 0 {
		var next []*PackfileObject
		progress := false

		for _, obj := range pending {
			if !obj.Type.IsDelta() {
				resolved = append(resolved, obj)
				progress = true
				continue
			}

			base, ok := p.findBase(obj, byOffset, byID, lookup)
			if !ok || base.Type.IsDelta() {
				next = append(next, obj)
				continue
			}

			full, err := ApplyDelta(base.Data, obj.Data)
			if err != nil {
				return nil, fmt.Errorf("applying delta at offset %d: %w", obj.Offset, err)
			}

			obj.Type = base.Type
			obj.Data = full
			obj.BaseHash = nil
			obj.BaseRelativeOffset = 0
			if obj.Hash, err = hash.Object(crypto.SHA1, obj.Type, obj.Data); err != nil {
				return nil, err
			}
			if obj.Type == object.TypeTree {
				if obj.Tree, err = object.ParseTree(obj.Data); err != nil {
					return nil, err
				}
			}
			byID[obj.Hash.String()] = obj
			resolved = append(resolved, obj)
			progress = true
		}

		if !progress {
			return nil, fmt.Errorf("%w: %d delta objects left unresolvable", ErrMissingDeltaBase, len(next))
		}
		pending = next
	}

	return resolved, nil
}

func (p *PackfileReader) findBase(obj *PackfileObject, byOffset map[int64]*PackfileObject, byID map[string]*PackfileObject, lookup BaseLookup) (*PackfileObject, bool) {
	switch obj.Type {
	case object.TypeOfsDelta:
		base, ok := byOffset[obj.Offset-obj.BaseRelativeOffset]
		return base, ok
	case object.TypeRefDelta:
		if base, ok := byID[obj.BaseHash.String()]; ok {
			return base, true
		}
		if lookup == nil {
			return nil, false
		}
		t, data, ok := lookup(obj.BaseHash)
		if !ok {
			return nil, false
		}
		return &PackfileObject{Type: t, Data: data, Hash: obj.BaseHash}, true
	default:
		return nil, false
	}
}
