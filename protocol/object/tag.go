package object

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// ErrBadTag is returned when an annotated tag object cannot be parsed.
var ErrBadTag = errors.New("malformed tag object")

// Tag is the decoded form of an annotated tag object. Lightweight tags are
// plain refs and have no object of their own.
type Tag struct {
	// Object is the hex id of the tagged object.
	Object string
	// ObjectType is the type of the tagged object, usually a commit.
	ObjectType Type
	// Name is the tag name, without the refs/tags/ prefix.
	Name   string
	Tagger Identity
	// Message is everything after the blank line ending the header.
	Message string
}

// ParseTag decodes a tag object's content (without the "tag <size>" object
// header). The layout mirrors a commit: "object", "type", "tag" and "tagger"
// header lines, a blank line, then the message.
func ParseTag(content []byte) (*Tag, error) {
	tag := &Tag{}

	rest := string(content)
	var sawObject, sawTagger bool
	for len(rest) > 0 {
		line, remainder, found := strings.Cut(rest, "\n")
		if !found {
			return nil, fmt.Errorf("%w: unterminated header line", ErrBadTag)
		}
		rest = remainder

		if line == "" {
			tag.Message = rest
			rest = ""
			break
		}

		key, value, found := strings.Cut(line, " ")
		if !found {
			return nil, fmt.Errorf("%w: header line %q has no value", ErrBadTag, line)
		}

		switch key {
		case "object":
			tag.Object = value
			sawObject = true
		case "type":
			tag.ObjectType = typeFromName(value)
			if !tag.ObjectType.IsStandard() {
				return nil, fmt.Errorf("%w: unknown target type %q", ErrBadTag, value)
			}
		case "tag":
			tag.Name = value
		case "tagger":
			id, err := ParseIdentity(value)
			if err != nil {
				return nil, fmt.Errorf("parsing tagger: %w", err)
			}
			tag.Tagger = *id
			sawTagger = true
		}
	}

	if !sawObject {
		return nil, fmt.Errorf("%w: missing object header", ErrBadTag)
	}
	if !sawTagger {
		return nil, fmt.Errorf("%w: missing tagger header", ErrBadTag)
	}

	return tag, nil
}

// SerializeTag encodes a tag back into the byte form that is hashed and
// stored. It is the exact inverse of ParseTag.
func SerializeTag(tag *Tag) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "object %s\n", tag.Object)
	fmt.Fprintf(&buf, "type %s\n", tag.ObjectType.Bytes())
	fmt.Fprintf(&buf, "tag %s\n", tag.Name)
	fmt.Fprintf(&buf, "tagger %s\n", tag.Tagger.String())
	buf.WriteByte('\n')
	buf.WriteString(tag.Message)

	return buf.Bytes()
}

func typeFromName(name string) Type {
	switch name {
	case "commit":
		return TypeCommit
	case "tree":
		return TypeTree
	case "blob":
		return TypeBlob
	case "tag":
		return TypeTag
	default:
		return TypeInvalid
	}
}
