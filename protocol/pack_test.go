package protocol_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhleyai/git/protocol"
)

func TestFormatPacket(t *testing.T) {
	testcases := map[string]struct {
		input    [][]byte
		expected []byte
	}{
		"empty": {
			input:    nil,
			expected: []byte("0000"), // just the flush packet
		},
		"a + LF": {
			input:    [][]byte{[]byte("a\n")},
			expected: []byte("0006a\n0000"),
		},
		"a": {
			input:    [][]byte{[]byte("a")},
			expected: []byte("0005a0000"),
		},
		"foobar + LF": {
			input:    [][]byte{[]byte("foobar\n")},
			expected: []byte("000bfoobar\n0000"),
		},
		"empty line": {
			input:    [][]byte{[]byte("")},
			expected: []byte("00040000"),
		},
		"two lines": {
			input:    [][]byte{[]byte("hello"), []byte("bye")},
			expected: []byte("0009hello0007bye0000"),
		},
	}

	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			actual, err := protocol.FormatPacket(tc.input...)
			require.NoError(t, err, "no error expected from FormatPacket")
			require.Equal(t, tc.expected, actual, "expected and actual byte slices should be equal")
		})
	}
}

func TestFormatPacketTooLarge(t *testing.T) {
	line := make([]byte, protocol.MaxPktLineDataSize+1)
	_, err := protocol.FormatPacket(line)
	require.ErrorIs(t, err, protocol.ErrDataTooLarge)

	// The maximum size itself is fine.
	out, err := protocol.FormatPacket(line[:protocol.MaxPktLineDataSize])
	require.NoError(t, err)
	require.Equal(t, []byte("fff0"), out[:4])
}

func TestParsePacket(t *testing.T) {
	toBytesSlice := func(lines ...string) [][]byte {
		out := make([][]byte, len(lines))
		for i, line := range lines {
			out[i] = []byte(line)
		}
		return out
	}

	testcases := map[string]struct {
		input     []byte
		lines     [][]byte
		remainder []byte
		err       error
	}{
		"empty": {
			input:     []byte("0000"),
			lines:     nil,
			remainder: []byte{},
		},
		"single line": {
			input:     []byte("0009hello0000"),
			lines:     toBytesSlice("hello"),
			remainder: []byte{},
		},
		"two lines": {
			input:     []byte("0009hello0007bye0000"),
			lines:     toBytesSlice("hello", "bye"),
			remainder: []byte{},
		},
		"bytes after the flush are the remainder": {
			input:     []byte("0009hello0000PACKdata"),
			lines:     toBytesSlice("hello"),
			remainder: []byte("PACKdata"),
		},
		"delimiter packets are skipped": {
			input:     []byte("0009hello00010007bye0000"),
			lines:     toBytesSlice("hello", "bye"),
			remainder: []byte{},
		},
		"response-end stops like a flush": {
			input:     []byte("0009hello0002leftover"),
			lines:     toBytesSlice("hello"),
			remainder: []byte("leftover"),
		},
		"truncated line": {
			// This line says it has 9 bytes, but only has 8.
			input:     []byte("0009hell"),
			lines:     nil,
			remainder: []byte("0009hell"),
			err:       protocol.ErrTruncatedPktLine,
		},
		"stray bytes with no flush": {
			input:     []byte("0009hello000"),
			lines:     toBytesSlice("hello"),
			remainder: []byte("000"),
			err:       protocol.ErrTruncatedPktLine,
		},
		"invalid length": {
			input:     []byte("000Gxxxxxxxxxxxxxxxx"),
			lines:     nil,
			remainder: []byte("000Gxxxxxxxxxxxxxxxx"),
			err:       protocol.ErrBadPktLineLength,
		},
		"uppercase hex length": {
			input:     []byte("000Ahello!0000"),
			lines:     nil,
			remainder: []byte("000Ahello!0000"),
			err:       protocol.ErrBadPktLineLength,
		},
	}

	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			lines, remainder, err := protocol.ParsePacket(tc.input)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tc.lines, lines)
			require.Equal(t, tc.remainder, remainder)
		})
	}
}

func TestFormatPktLines(t *testing.T) {
	testcases := map[string]struct {
		input    []string
		expected []byte
	}{
		"empty": {
			input:    nil,
			expected: []byte("0000"),
		},
		"single": {
			input:    []string{"a"},
			expected: []byte("0006a\n0000"),
		},
		"multiple": {
			input:    []string{"hello", "bye"},
			expected: []byte("000ahello\n0008bye\n0000"),
		},
	}

	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.expected, protocol.FormatPktLines(tc.input))
		})
	}
}

func TestParsePktLines(t *testing.T) {
	testcases := map[string]struct {
		input    []byte
		expected []string
		err      error
	}{
		"empty input": {
			input:    []byte{},
			expected: []string{},
		},
		"flush only": {
			input:    []byte("0000"),
			expected: []string{},
		},
		"a + LF": {
			input:    []byte("0006a\n0000"),
			expected: []string{"a"},
		},
		"LF is optional": {
			input:    []byte("0005a0000"),
			expected: []string{"a"},
		},
		"only one trailing LF is stripped": {
			input:    []byte("0007a\n\n0000"),
			expected: []string{"a\n"},
		},
		"flush ends the section": {
			input:    []byte("0006a\n0000ignored"),
			expected: []string{"a"},
		},
		"no flush needed at end of buffer": {
			input:    []byte("0006a\n"),
			expected: []string{"a"},
		},
		"truncated length prefix": {
			input: []byte("00"),
			err:   protocol.ErrTruncatedPktLine,
		},
		"declared length exceeds buffer": {
			input: []byte("0040short"),
			err:   protocol.ErrTruncatedPktLine,
		},
		"invalid length": {
			input: []byte("zzzz"),
			err:   protocol.ErrBadPktLineLength,
		},
	}

	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			lines, err := protocol.ParsePktLines(tc.input)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, lines)
		})
	}
}

func TestPktLineRoundTrip(t *testing.T) {
	lines := []string{
		"7217a7c7e582c46cec22a130adf4b9d7d950fba0 HEAD",
		"want 7217a7c7e582c46cec22a130adf4b9d7d950fba0",
		strings.Repeat("x", 1000),
	}

	parsed, err := protocol.ParsePktLines(protocol.FormatPktLines(lines))
	require.NoError(t, err)
	require.Equal(t, lines, parsed)
}
