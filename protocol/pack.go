package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// pkt-lines are the packet framing of Git's wire protocols.
// They are described in:
//   - https://git-scm.com/docs/gitprotocol-common
//   - https://git-scm.com/docs/gitprotocol-pack

// A non-binary line SHOULD BE terminated by an LF, which if present MUST be
// included in the total length. Receivers MUST treat pkt-lines with
// non-binary data the same whether or not they contain the trailing LF
// (stripping the LF if present, and not complaining when it is missing).
//
// A pkt-line with a length field of 0 ("0000"), called a flush-pkt, is a
// special case and MUST be handled differently than an empty pkt-line
// ("0004").
const (
	// The length field of a packet includes 4 ASCII hex digits for the length.
	// The length field is part of the value, i.e. the data is the value - 4.
	PktLineLengthSize = 4
	// The data field can be at most 65516 bytes long, making the whole packet
	// 65520 bytes at most.
	MaxPktLineDataSize = 65516
	// The maximum packet size with the largest packet possible.
	MaxPktLineSize = MaxPktLineDataSize + PktLineLengthSize
)

var (
	// ErrDataTooLarge is returned when a single line exceeds the pkt-line
	// payload limit.
	ErrDataTooLarge = errors.New("the data field is too large")
	// ErrBadPktLineLength is returned when a length prefix is not 4 ASCII hex
	// digits, or declares a length the framing forbids.
	ErrBadPktLineLength = errors.New("invalid pkt-line length prefix")
	// ErrTruncatedPktLine is returned when the buffer ends inside a declared
	// packet.
	ErrTruncatedPktLine = errors.New("pkt-line truncated")
)

type specialPacket []byte

var (
	// FlushPacket is a packet of length '0000'. It ends a section of the
	// stream. Defined by https://git-scm.com/docs/gitprotocol-common
	FlushPacket = specialPacket("0000")

	// DelimeterPacket is a packet of length '0001', defined by the v2
	// document: https://git-scm.com/docs/gitprotocol-v2
	DelimeterPacket = specialPacket("0001")

	// ResponseEndPacket is a packet of length '0002', defined by the v2
	// document: https://git-scm.com/docs/gitprotocol-v2
	ResponseEndPacket = specialPacket("0002")
)

// FormatPacket frames the given lines as pkt-lines, terminated by a
// flush-pkt. The lines are emitted exactly as given; callers wanting the
// conventional trailing LF must include it themselves (see FormatPktLines).
func FormatPacket(packetLines ...[]byte) ([]byte, error) {
	var out []byte
	for _, pl := range packetLines {
		if len(pl) > MaxPktLineDataSize {
			return nil, fmt.Errorf("%w: %d bytes in one line", ErrDataTooLarge, len(pl))
		}
		out = fmt.Appendf(out, "%04x", len(pl)+PktLineLengthSize)
		out = append(out, pl...)
	}
	out = append(out, FlushPacket...)
	return out, nil
}

// ParsePacket reads raw pkt-lines from b until a flush-pkt or the end of the
// buffer. It returns the line payloads and any bytes following the flush.
// Special packets below length 4 are skipped, except a response-end which
// stops parsing like a flush does.
func ParsePacket(b []byte) (lines [][]byte, remainder []byte, err error) {
	for len(b) >= PktLineLengthSize {
		length, err := parsePktLength(b[:PktLineLengthSize])
		if err != nil {
			return lines, b, err
		}
		if length < 4 {
			b = b[PktLineLengthSize:]
			if length == 0 || length == 2 { // flush or response-end
				return lines, b, nil
			}
			// Delimiter: continue with the next section.
			continue
		}
		if length > len(b) {
			return lines, b, fmt.Errorf("%w: packet declared %d bytes, but only %d remain", ErrTruncatedPktLine, length, len(b))
		}
		lines = append(lines, b[PktLineLengthSize:length])
		b = b[length:]
	}
	if len(b) > 0 {
		return lines, b, fmt.Errorf("%w: %d stray bytes after last packet", ErrTruncatedPktLine, len(b))
	}
	return lines, b, nil
}

// FormatPktLines frames a sequence of text lines as pkt-lines, appending the
// conventional LF to each and terminating with a flush-pkt. It is the exact
// inverse of ParsePktLines for lines without an embedded NUL or newline.
func FormatPktLines(lines []string) []byte {
	out := make([]byte, 0, len(lines)*16+PktLineLengthSize)
	for _, line := range lines {
		out = fmt.Appendf(out, "%04x%s\n", len(line)+1+PktLineLengthSize, line)
	}
	out = append(out, FlushPacket...)
	return out
}

// ParsePktLines reads text pkt-lines until a flush-pkt or the end of the
// buffer, stripping at most one trailing LF per line. It fails on a truncated
// length prefix, an invalid hex length, or a declared length exceeding the
// remaining buffer.
func ParsePktLines(data []byte) ([]string, error) {
	lines := make([]string, 0)
	for len(data) > 0 {
		if len(data) < PktLineLengthSize {
			return nil, fmt.Errorf("%w: %d bytes left for a length prefix", ErrTruncatedPktLine, len(data))
		}
		length, err := parsePktLength(data[:PktLineLengthSize])
		if err != nil {
			return nil, err
		}
		if length == 0 { // flush ends the section
			break
		}
		if length < 4 {
			data = data[PktLineLengthSize:]
			continue
		}
		if length > len(data) {
			return nil, fmt.Errorf("%w: packet declared %d bytes, but only %d remain", ErrTruncatedPktLine, length, len(data))
		}
		lines = append(lines, strings.TrimSuffix(string(data[PktLineLengthSize:length]), "\n"))
		data = data[length:]
	}
	return lines, nil
}

func parsePktLength(prefix []byte) (int, error) {
	var length int
	for _, c := range prefix {
		var digit int
		switch {
		case c >= '0' && c <= '9':
			digit = int(c - '0')
		case c >= 'a' && c <= 'f':
			digit = int(c-'a') + 10
		// Uppercase hex is not legal in pkt-line length prefixes.
		default:
			return 0, fmt.Errorf("%w: %q", ErrBadPktLineLength, string(prefix))
		}
		length = length<<4 | digit
	}
	return length, nil
}
