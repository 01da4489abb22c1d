package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zhleyai/git/protocol/hash"
)

// This file implements the v0 "smart" negotiation exchange: the ref
// advertisement a server opens with, the want/have lines a client answers
// with, and the ACK/NAK responses that close a negotiation round.
// See https://git-scm.com/docs/pack-protocol#_packfile_negotiation

// ErrBadRefCommand is returned when a receive-pack command line cannot be
// parsed.
var ErrBadRefCommand = errors.New("malformed ref update command")

// AdvertisedRef is one "<hash> <refname>" entry of a ref advertisement.
type AdvertisedRef struct {
	Name string
	Hash hash.Hash
}

// Capability sets advertised per service, matching what the engine actually
// implements.
var (
	UploadPackCapabilities  = []string{"multi_ack", "side-band-64k", "ofs-delta"}
	ReceivePackCapabilities = []string{"report-status", "delete-refs", "ofs-delta"}
)

// ParseCapabilities splits the first line of a ref advertisement (or the
// first want line of a request) into its ref part and its capability tokens.
// Capabilities follow the first NUL, separated by spaces. A line without a
// NUL has no capabilities.
func ParseCapabilities(line string) (refPart string, capabilities []string) {
	refPart, caps, found := strings.Cut(line, "\x00")
	if !found {
		return line, nil
	}
	return refPart, strings.Fields(caps)
}

// FormatRefAdvertisement builds the pkt-line framed ref advertisement that
// opens a fetch or push exchange. The first entry carries the server's
// capabilities after a NUL; the rest are plain "<hash> <refname>" lines. The
// advertisement ends with a flush-pkt.
//
// An empty repository still has to advertise capabilities, so clients can
// tell "empty" from "broken": the documented placeholder is a zero id with
// the magic refname "capabilities^{}".
func FormatRefAdvertisement(refs []AdvertisedRef, capabilities []string) []byte {
	caps := strings.Join(capabilities, " ")

	if len(refs) == 0 {
		return FormatPktLines([]string{
			fmt.Sprintf("%s capabilities^{}\x00%s", hash.ZeroHex, caps),
		})
	}

	lines := make([]string, 0, len(refs))
	lines = append(lines, fmt.Sprintf("%s %s\x00%s", refs[0].Hash, refs[0].Name, caps))
	for _, ref := range refs[1:] {
		lines = append(lines, fmt.Sprintf("%s %s", ref.Hash, ref.Name))
	}
	return FormatPktLines(lines)
}

// ParseWantHave extracts the wanted and already-had object ids from an
// upload-pack request's lines. Lines that are neither wants nor haves
// ("done", capability suffixes on the first want, and so on) are ignored.
func ParseWantHave(lines []string) (wants, haves []string) {
	for _, line := range lines {
		// The first want line may carry capabilities after a NUL.
		line, _ = strings.CutSuffix(line, "\n")
		line, _, _ = strings.Cut(line, "\x00")

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "want":
			wants = append(wants, fields[1])
		case "have":
			haves = append(haves, fields[1])
		}
	}
	return wants, haves
}

// FormatNAK builds the single pkt-line "NAK" response, sent when the server
// has not yet found a common base.
func FormatNAK() []byte {
	return []byte("0008NAK\n")
}

// FormatACK builds the single pkt-line "ACK <hash>" response, acknowledging a
// common object.
func FormatACK(id hash.Hash) []byte {
	return []byte(fmt.Sprintf("%04x", len("ACK ")+len(id.String())+1+PktLineLengthSize) + "ACK " + id.String() + "\n")
}

// RefCommandAction classifies a receive-pack command by its old and new ids.
type RefCommandAction int

const (
	RefCommandCreate RefCommandAction = iota
	RefCommandUpdate
	RefCommandDelete
)

func (a RefCommandAction) String() string {
	switch a {
	case RefCommandCreate:
		return "create"
	case RefCommandUpdate:
		return "update"
	case RefCommandDelete:
		return "delete"
	default:
		return fmt.Sprintf("RefCommandAction(%d)", int(a))
	}
}

// RefCommand is one "<old> <new> <refname>" command of a receive-pack
// request. The zero id marks non-existence: a zero old id creates the ref, a
// zero new id deletes it.
type RefCommand struct {
	OldHash hash.Hash
	NewHash hash.Hash
	Name    string
	// Capabilities carried after a NUL on the first command line.
	Capabilities []string
}

// Action returns what the command asks the server to do.
func (c RefCommand) Action() RefCommandAction {
	switch {
	case c.OldHash.IsZero():
		return RefCommandCreate
	case c.NewHash.IsZero():
		return RefCommandDelete
	default:
		return RefCommandUpdate
	}
}

// ParseRefCommand parses one receive-pack command line of the form
// "<old-value> <new-value> <ref-name>", optionally followed by a NUL and the
// client's capability list.
func ParseRefCommand(line string) (RefCommand, error) {
	line = strings.TrimSuffix(line, "\n")
	line, caps, hasCaps := strings.Cut(line, "\x00")

	fields := strings.SplitN(line, " ", 3)
	if len(fields) != 3 {
		return RefCommand{}, fmt.Errorf("%w: %q", ErrBadRefCommand, line)
	}
	if len(fields[0]) != 40 || len(fields[1]) != 40 {
		return RefCommand{}, fmt.Errorf("%w: ids must be 40 hex characters", ErrBadRefCommand)
	}

	oldHash, err := hash.FromHex(fields[0])
	if err != nil {
		return RefCommand{}, fmt.Errorf("%w: %v", ErrBadRefCommand, err)
	}
	newHash, err := hash.FromHex(fields[1])
	if err != nil {
		return RefCommand{}, fmt.Errorf("%w: %v", ErrBadRefCommand, err)
	}

	cmd := RefCommand{OldHash: oldHash, NewHash: newHash, Name: fields[2]}
	if hasCaps {
		cmd.Capabilities = strings.Fields(caps)
	}
	return cmd, nil
}
