package object

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// ErrBadCommit is returned when a commit object cannot be parsed.
var ErrBadCommit = errors.New("malformed commit object")

// Commit is the decoded form of a commit object.
//
// The serialized byte layout is exactly what the object id is computed over,
// so every field must survive a parse/serialize round trip bit for bit. In
// particular the author and committer timestamps are the ones embedded in the
// object; substituting the current time would change the id.
type Commit struct {
	// Tree is the hex id of the root tree.
	Tree string
	// Parents holds the hex ids of the parent commits, in order. Root
	// commits have none; merge commits have two or more.
	Parents []string
	Author  Identity
	// Committer differs from Author when a commit is amended, rebased or
	// applied by someone else.
	Committer Identity
	// Extra preserves header lines this implementation does not interpret,
	// such as gpgsig, verbatim. Dropping them would break round-tripping.
	Extra []CommitHeader
	// Message is everything after the blank line ending the header.
	Message string
}

// CommitHeader is an uninterpreted commit header line. Value includes any
// continuation lines, joined with "\n " as they appear on disk.
type CommitHeader struct {
	Key   string
	Value string
}

// ParseCommit decodes a commit object's content (without the "commit <size>"
// object header).
//
// The header section is a sequence of "<key> <value>" lines: "tree" once,
// "parent" zero or more times, then "author" and "committer". A line starting
// with a space continues the previous header. The first blank line ends the
// header; the remainder is the commit message.
func ParseCommit(content []byte) (*Commit, error) {
	commit := &Commit{}

	rest := string(content)
	var sawAuthor, sawCommitter bool
	for len(rest) > 0 {
		line, remainder, found := strings.Cut(rest, "\n")
		if !found {
			// Header lines are always LF-terminated; a header section
			// that runs off the end of the buffer is malformed.
			return nil, fmt.Errorf("%w: unterminated header line", ErrBadCommit)
		}
		rest = remainder

		if line == "" {
			// Blank line: everything that follows is the message.
			commit.Message = rest
			rest = ""
			break
		}

		// Continuation lines belong to the previous header.
		for strings.HasPrefix(rest, " ") {
			var cont string
			cont, rest, found = strings.Cut(rest, "\n")
			if !found {
				return nil, fmt.Errorf("%w: unterminated header line", ErrBadCommit)
			}
			line += "\n" + cont
		}

		key, value, found := strings.Cut(line, " ")
		if !found {
			return nil, fmt.Errorf("%w: header line %q has no value", ErrBadCommit, line)
		}

		switch key {
		case "tree":
			if commit.Tree != "" {
				return nil, fmt.Errorf("%w: multiple tree headers", ErrBadCommit)
			}
			commit.Tree = value
		case "parent":
			commit.Parents = append(commit.Parents, value)
		case "author":
			id, err := ParseIdentity(value)
			if err != nil {
				return nil, fmt.Errorf("parsing author: %w", err)
			}
			commit.Author = *id
			sawAuthor = true
		case "committer":
			id, err := ParseIdentity(value)
			if err != nil {
				return nil, fmt.Errorf("parsing committer: %w", err)
			}
			commit.Committer = *id
			sawCommitter = true
		default:
			commit.Extra = append(commit.Extra, CommitHeader{Key: key, Value: value})
		}
	}

	if commit.Tree == "" {
		return nil, fmt.Errorf("%w: missing tree header", ErrBadCommit)
	}
	if !sawAuthor {
		return nil, fmt.Errorf("%w: missing author header", ErrBadCommit)
	}
	if !sawCommitter {
		return nil, fmt.Errorf("%w: missing committer header", ErrBadCommit)
	}

	return commit, nil
}

// SerializeCommit encodes a commit back into the byte form that is hashed and
// stored. It is the exact inverse of ParseCommit.
func SerializeCommit(commit *Commit) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "tree %s\n", commit.Tree)
	for _, parent := range commit.Parents {
		fmt.Fprintf(&buf, "parent %s\n", parent)
	}
	fmt.Fprintf(&buf, "author %s\n", commit.Author.String())
	fmt.Fprintf(&buf, "committer %s\n", commit.Committer.String())
	for _, extra := range commit.Extra {
		fmt.Fprintf(&buf, "%s %s\n", extra.Key, extra.Value)
	}
	buf.WriteByte('\n')
	buf.WriteString(commit.Message)

	return buf.Bytes()
}
