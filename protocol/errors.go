package protocol

import (
	"errors"
	"io"
)

// eofIsUnexpected checks if the error is an io.EOF.
// If it is, we return io.ErrUnexpectedEOF.
// If not, we return the input error verbatim.
func eofIsUnexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// ChecksumMismatchError reports a pack whose trailing SHA-1 does not match
// its body. The whole pack is rejected; no object from it may be trusted.
// This error should be compared with errors.Is against ErrChecksumMismatch.
type ChecksumMismatchError struct {
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return "packfile checksum mismatch: expected " + e.Expected + ", computed " + e.Actual
}

// Is enables errors.Is() compatibility with ErrChecksumMismatch.
func (e *ChecksumMismatchError) Is(target error) bool {
	return target == ErrChecksumMismatch
}

// ErrChecksumMismatch is returned when a pack's trailing checksum does not
// cover its content. Use errors.Is() for comparison.
var ErrChecksumMismatch = errors.New("packfile checksum mismatch")
