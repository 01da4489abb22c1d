package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrInvalidDelta is returned when a delta payload cannot be decoded.
	ErrInvalidDelta = errors.New("the payload given is not a valid delta")
	// ErrDeltaSizeMismatch is returned when applying a delta produces output
	// whose length differs from the declared result size, or when the base
	// does not have the declared base size.
	ErrDeltaSizeMismatch = errors.New("delta size mismatch")
)

// Delta is a decoded delta payload: the expected base size, the declared
// result size, and the ordered instruction list that reconstructs the result
// from the base.
//
// The wire format is two size varints followed by instructions. Each
// instruction byte either copies a window of the base or inserts literal
// bytes carried in the delta itself:
//
//	copy (high bit set):
//	+----------+---------+---------+---------+---------+-------+-------+-------+
//	| 1xxxxxxx | offset1 | offset2 | offset3 | offset4 | size1 | size2 | size3 |
//	+----------+---------+---------+---------+---------+-------+-------+-------+
//	The low 4 bits say which offset bytes are present, bits 4-6 which size
//	bytes. Each present byte contributes 8 bits at its positional shift
//	(offset1 is bits 0-7, offset3 bits 16-23, even when offset2 is absent).
//	A decoded size of 0 means 0x10000.
//
//	insert (high bit clear, byte != 0):
//	+----------+============+
//	| 0xxxxxxx |    data    |
//	+----------+============+
//	The low 7 bits give the literal length, which must not be zero.
//
//	A full zero byte is reserved and MUST be rejected.
type Delta struct {
	// BaseSize is the length the base object must have.
	BaseSize uint64
	// ResultSize is the length the reconstructed object must have. Applying
	// the instructions must produce exactly this many bytes.
	ResultSize uint64
	// Changes contains all the modifications to apply, in order.
	Changes []DeltaChange
}

// DeltaChange is a single delta instruction. If Insert is non-nil, the bytes
// are appended verbatim and the other fields are meaningless. Otherwise
// Length bytes starting at BaseOffset are copied from the base.
type DeltaChange struct {
	Insert     []byte
	BaseOffset uint64
	Length     uint64
}

// ParseDelta decodes a delta instruction stream. Every byte access is bounds
// checked; a delta that runs off the end of its payload, or contains the
// reserved zero instruction, is rejected with ErrInvalidDelta.
func ParseDelta(payload []byte) (*Delta, error) {
	baseSize, payload, err := deltaHeaderSize(payload)
	if err != nil {
		return nil, err
	}
	resultSize, payload, err := deltaHeaderSize(payload)
	if err != nil {
		return nil, err
	}

	delta := &Delta{BaseSize: baseSize, ResultSize: resultSize}
	for len(payload) > 0 {
		cmd := payload[0]
		payload = payload[1:]

		switch {
		case cmd&0x80 != 0: // copy from base
			var offset, size uint64
			for bit := 0; bit < 4; bit++ {
				if cmd&(1<<bit) != 0 {
					if len(payload) == 0 {
						return nil, fmt.Errorf("%w: copy instruction truncated", ErrInvalidDelta)
					}
					offset |= uint64(payload[0]) << (8 * bit)
					payload = payload[1:]
				}
			}
			for bit := 0; bit < 3; bit++ {
				if cmd&(1<<(bit+4)) != 0 {
					if len(payload) == 0 {
						return nil, fmt.Errorf("%w: copy instruction truncated", ErrInvalidDelta)
					}
					size |= uint64(payload[0]) << (8 * bit)
					payload = payload[1:]
				}
			}
			if size == 0 { // documented exception
				size = 0x10000
			}
			if offset+size < offset || offset+size > baseSize {
				return nil, fmt.Errorf("%w: copy [%d,%d) outside base of %d bytes", ErrInvalidDelta, offset, offset+size, baseSize)
			}
			delta.Changes = append(delta.Changes, DeltaChange{BaseOffset: offset, Length: size})

		case cmd != 0: // insert literal data
			// The top bit is 0; the other 7 act as the literal length.
			n := int(cmd)
			if n > len(payload) {
				return nil, fmt.Errorf("%w: insert of %d bytes with %d remaining", ErrInvalidDelta, n, len(payload))
			}
			delta.Changes = append(delta.Changes, DeltaChange{Insert: payload[:n]})
			payload = payload[n:]

		default: // cmd == 0; reserved
			return nil, fmt.Errorf("%w: payload included a cmd 0x0 (reserved) instruction", ErrInvalidDelta)
		}
	}

	return delta, nil
}

// Apply reconstructs the full object from its base. The base must have the
// declared base size and the output must reach exactly the declared result
// size; anything else fails with ErrDeltaSizeMismatch.
func (d *Delta) Apply(base []byte) ([]byte, error) {
	if uint64(len(base)) != d.BaseSize {
		return nil, fmt.Errorf("%w: base is %d bytes, delta expects %d", ErrDeltaSizeMismatch, len(base), d.BaseSize)
	}

	result := make([]byte, 0, d.ResultSize)
	for _, change := range d.Changes {
		if change.Insert != nil {
			result = append(result, change.Insert...)
			continue
		}
		// Copy bounds were validated against BaseSize during parsing.
		result = append(result, base[change.BaseOffset:change.BaseOffset+change.Length]...)
	}

	if uint64(len(result)) != d.ResultSize {
		return nil, fmt.Errorf("%w: produced %d bytes, declared %d", ErrDeltaSizeMismatch, len(result), d.ResultSize)
	}
	return result, nil
}

// ApplyDelta decodes the delta payload and applies it to base in one step.
func ApplyDelta(base, payload []byte) ([]byte, error) {
	delta, err := ParseDelta(payload)
	if err != nil {
		return nil, err
	}
	return delta.Apply(base)
}

// deltaHeaderSize reads one little-endian 7-bit-per-byte varint.
func deltaHeaderSize(b []byte) (uint64, []byte, error) {
	var size uint64
	for i := 0; ; i++ {
		if i >= len(b) {
			return 0, nil, fmt.Errorf("%w: truncated size varint", ErrInvalidDelta)
		}
		if i > 9 {
			return 0, nil, fmt.Errorf("%w: size varint too long", ErrInvalidDelta)
		}
		size |= uint64(b[i]&0x7f) << (7 * i)
		if b[i]&0x80 == 0 {
			return size, b[i+1:], nil
		}
	}
}

// deltaWindow is the anchor width BuildDelta uses when indexing the base.
// Matches shorter than this are cheaper to emit as literal inserts anyway.
const deltaWindow = 16

// BuildDelta encodes target as a delta against base. The encoder indexes the
// base in fixed windows and greedily extends matches, emitting copy
// instructions for matched ranges and literal inserts for the rest. The only
// contract is that ApplyDelta(base, BuildDelta(base, target)) == target; the
// result is not guaranteed to be smaller than target, so callers should keep
// it only when it is.
func BuildDelta(base, target []byte) []byte {
	var out bytes.Buffer
	writeDeltaSize(&out, uint64(len(base)))
	writeDeltaSize(&out, uint64(len(target)))

	// Index every base window by its content.
	anchors := make(map[string]int, len(base)/deltaWindow+1)
	for i := 0; i+deltaWindow <= len(base); i += deltaWindow {
		anchors[string(base[i:i+deltaWindow])] = i
	}

	var pending []byte
	flush := func() {
		for len(pending) > 0 {
			n := len(pending)
			if n > 0x7f {
				n = 0x7f
			}
			out.WriteByte(byte(n))
			out.Write(pending[:n])
			pending = pending[n:]
		}
	}

	pos := 0
	for pos < len(target) {
		if pos+deltaWindow > len(target) {
			pending = append(pending, target[pos:]...)
			break
		}

		baseOff, ok := anchors[string(target[pos:pos+deltaWindow])]
		if !ok {
			pending = append(pending, target[pos])
			pos++
			continue
		}

		// Extend the match as far as it goes.
		length := deltaWindow
		for pos+length < len(target) && baseOff+length < len(base) &&
			length < 0xffffff && target[pos+length] == base[baseOff+length] {
			length++
		}

		flush()
		writeCopy(&out, uint64(baseOff), uint64(length))
		pos += length
	}
	flush()

	return out.Bytes()
}

func writeDeltaSize(out *bytes.Buffer, size uint64) {
	for {
		b := byte(size & 0x7f)
		size >>= 7
		if size > 0 {
			b |= 0x80
		}
		out.WriteByte(b)
		if size == 0 {
			return
		}
	}
}

func writeCopy(out *bytes.Buffer, offset, size uint64) {
	var cmd byte = 0x80
	var args []byte

	var offsetBytes [4]byte
	binary.LittleEndian.PutUint32(offsetBytes[:], uint32(offset))
	for bit, b := range offsetBytes {
		if b != 0 {
			cmd |= 1 << bit
			args = append(args, b)
		}
	}

	// A size of 0x10000 is the documented zero encoding.
	if size != 0x10000 {
		sizeBytes := [3]byte{byte(size), byte(size >> 8), byte(size >> 16)}
		for bit, b := range sizeBytes {
			if b != 0 {
				cmd |= 1 << (bit + 4)
				args = append(args, b)
			}
		}
	}

	out.WriteByte(cmd)
	out.Write(args)
}
