package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/zhleyai/git/log"
	"github.com/zhleyai/git/protocol/hash"
)

var (
	// ErrBadSessionState is returned when a session operation is invoked out
	// of order, e.g. sending a pack before negotiation finished.
	ErrBadSessionState = errors.New("operation invalid in current session state")
	// ErrNoWants is returned when a fetch request contains no want lines.
	ErrNoWants = errors.New("fetch request contains no want lines")
)

// SessionState tracks where a negotiation session is in its lifecycle. Both
// the fetch (upload-pack) and push (receive-pack) sessions advance strictly
// forward through their states; there is no way back.
type SessionState int

const (
	// StateAdvertiseRefs is the initial state: the server owes the peer a
	// ref advertisement.
	StateAdvertiseRefs SessionState = iota
	// StateAwaitWantHave waits for the fetch client's want/have section.
	StateAwaitWantHave
	// StateNegotiate answers have rounds with ACK/NAK until a pack can be
	// sent.
	StateNegotiate
	// StateSendPack streams the pack.
	StateSendPack
	// StateAwaitRefCommandsAndPack waits for the push client's ref commands
	// and pack.
	StateAwaitRefCommandsAndPack
	// StateUnpackAndApplyRefs has the commands and pack in hand; the caller
	// unpacks and applies them.
	StateUnpackAndApplyRefs
	// StateSendReportStatus reports per-ref results to the push client.
	StateSendReportStatus
	// StateDone is terminal.
	StateDone
)

func (s SessionState) String() string {
	switch s {
	case StateAdvertiseRefs:
		return "AdvertiseRefs"
	case StateAwaitWantHave:
		return "AwaitWantHave"
	case StateNegotiate:
		return "Negotiate"
	case StateSendPack:
		return "SendPack"
	case StateAwaitRefCommandsAndPack:
		return "AwaitRefCommandsAndPack"
	case StateUnpackAndApplyRefs:
		return "UnpackAndApplyRefs"
	case StateSendReportStatus:
		return "SendReportStatus"
	case StateDone:
		return "Done"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// UploadPackSession drives one fetch negotiation:
// AdvertiseRefs → AwaitWantHave → Negotiate → SendPack → Done.
//
// A session is a per-connection value with no locking of its own; the
// transport owning the connection calls it from one goroutine. All methods
// operate on fully buffered byte slices, so the session never blocks.
type UploadPackSession struct {
	state SessionState
	wants []string
	haves []string
}

// NewUploadPackSession starts a fetch session in the AdvertiseRefs state.
func NewUploadPackSession() *UploadPackSession {
	return &UploadPackSession{state: StateAdvertiseRefs}
}

// State returns the session's current state.
func (s *UploadPackSession) State() SessionState { return s.state }

// AdvertiseRefs produces the opening ref advertisement and moves to
// AwaitWantHave.
func (s *UploadPackSession) AdvertiseRefs(ctx context.Context, refs []AdvertisedRef) ([]byte, error) {
	if s.state != StateAdvertiseRefs {
		return nil, fmt.Errorf("%w: AdvertiseRefs in state %s", ErrBadSessionState, s.state)
	}

	log.FromContext(ctx).Debug("advertising refs", "refs", len(refs))
	s.state = StateAwaitWantHave
	return FormatRefAdvertisement(refs, UploadPackCapabilities), nil
}

// ReceiveWantHave parses the client's want/have section and moves to
// Negotiate. A request without a single want fails with ErrNoWants; a fetch
// that wants nothing has no reason to exist.
func (s *UploadPackSession) ReceiveWantHave(ctx context.Context, data []byte) (wants, haves []string, err error) {
	if s.state != StateAwaitWantHave {
		return nil, nil, fmt.Errorf("%w: ReceiveWantHave in state %s", ErrBadSessionState, s.state)
	}

	lines, err := ParsePktLines(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing want/have section: %w", err)
	}

	s.wants, s.haves = ParseWantHave(lines)
	if len(s.wants) == 0 {
		return nil, nil, ErrNoWants
	}

	log.FromContext(ctx).Debug("received want/have", "wants", len(s.wants), "haves", len(s.haves))
	s.state = StateNegotiate
	return s.wants, s.haves, nil
}

// Negotiate closes a negotiation round: the first have the server recognises
// (per common) is ACKed, otherwise a NAK is sent. Moves to SendPack.
func (s *UploadPackSession) Negotiate(ctx context.Context, common func(id string) bool) ([]byte, error) {
	if s.state != StateNegotiate {
		return nil, fmt.Errorf("%w: Negotiate in state %s", ErrBadSessionState, s.state)
	}
	s.state = StateSendPack

	if common != nil {
		for _, have := range s.haves {
			if !common(have) {
				continue
			}
			id, err := hash.FromHex(have)
			if err != nil {
				return nil, fmt.Errorf("invalid have id %q: %w", have, err)
			}
			log.FromContext(ctx).Debug("negotiation found common object", "id", have)
			return FormatACK(id), nil
		}
	}

	log.FromContext(ctx).Debug("negotiation found no common object")
	return FormatNAK(), nil
}

// SendPack accepts the serialized pack, marks the session Done and returns
// the bytes to stream. The pack is built by the caller (through the pack
// codec) because choosing its contents needs the object store, which the
// session deliberately does not hold.
func (s *UploadPackSession) SendPack(pack []byte) ([]byte, error) {
	if s.state != StateSendPack {
		return nil, fmt.Errorf("%w: SendPack in state %s", ErrBadSessionState, s.state)
	}
	s.state = StateDone
	return pack, nil
}

// ReceivePackSession drives one push exchange:
// AdvertiseRefs → AwaitRefCommandsAndPack → UnpackAndApplyRefs →
// SendReportStatus → Done.
type ReceivePackSession struct {
	state    SessionState
	commands []RefCommand
}

// NewReceivePackSession starts a push session in the AdvertiseRefs state.
func NewReceivePackSession() *ReceivePackSession {
	return &ReceivePackSession{state: StateAdvertiseRefs}
}

// State returns the session's current state.
func (s *ReceivePackSession) State() SessionState { return s.state }

// AdvertiseRefs produces the opening ref advertisement and moves to
// AwaitRefCommandsAndPack.
func (s *ReceivePackSession) AdvertiseRefs(ctx context.Context, refs []AdvertisedRef) ([]byte, error) {
	if s.state != StateAdvertiseRefs {
		return nil, fmt.Errorf("%w: AdvertiseRefs in state %s", ErrBadSessionState, s.state)
	}

	log.FromContext(ctx).Debug("advertising refs", "refs", len(refs))
	s.state = StateAwaitRefCommandsAndPack
	return FormatRefAdvertisement(refs, ReceivePackCapabilities), nil
}

// ReceiveCommands splits the push request into its ref commands and the raw
// pack that follows the command section's flush-pkt, and moves to
// UnpackAndApplyRefs. The pack bytes are returned unparsed; the caller feeds
// them to ParsePackfile so unpack failures can be reported per the protocol
// rather than aborting the exchange.
func (s *ReceivePackSession) ReceiveCommands(ctx context.Context, data []byte) ([]RefCommand, []byte, error) {
	if s.state != StateAwaitRefCommandsAndPack {
		return nil, nil, fmt.Errorf("%w: ReceiveCommands in state %s", ErrBadSessionState, s.state)
	}

	lines, pack, err := ParsePacket(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing command section: %w", err)
	}

	commands := make([]RefCommand, 0, len(lines))
	for _, line := range lines {
		cmd, err := ParseRefCommand(string(line))
		if err != nil {
			return nil, nil, err
		}
		commands = append(commands, cmd)
	}

	log.FromContext(ctx).Debug("received ref commands", "commands", len(commands), "pack_bytes", len(pack))
	s.commands = commands
	s.state = StateUnpackAndApplyRefs
	return commands, pack, nil
}

// RefStatus is the per-ref outcome of a push. A nil Err means the ref command
// was applied.
type RefStatus struct {
	Name string
	Err  error
}

// ReportStatus builds the report-status section ending the push: an "unpack
// ok" or "unpack <error>" line, one "ok <ref>"/"ng <ref> <reason>" line per
// command, and a flush-pkt. Moves through SendReportStatus to Done.
func (s *ReceivePackSession) ReportStatus(unpackErr error, results []RefStatus) ([]byte, error) {
	if s.state != StateUnpackAndApplyRefs {
		return nil, fmt.Errorf("%w: ReportStatus in state %s", ErrBadSessionState, s.state)
	}
	s.state = StateSendReportStatus

	lines := make([]string, 0, len(results)+1)
	if unpackErr != nil {
		lines = append(lines, fmt.Sprintf("unpack %v", unpackErr))
	} else {
		lines = append(lines, "unpack ok")
	}

	for _, result := range results {
		if result.Err != nil {
			lines = append(lines, fmt.Sprintf("ng %s %v", result.Name, result.Err))
		} else {
			lines = append(lines, fmt.Sprintf("ok %s", result.Name))
		}
	}

	s.state = StateDone
	return FormatPktLines(lines), nil
}
