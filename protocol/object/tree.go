package object

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// ErrBadTree is returned when a tree object cannot be parsed.
var ErrBadTree = errors.New("malformed tree object")

// TreeEntry is one record of a tree object.
//
// The wire format of a tree is the concatenation of:
//   - the file mode as ASCII octal, without leading zeros (dirs are 40000)
//   - a space (0x20)
//   - the entry name; NUL bytes are not legal
//   - a NUL byte
//   - the raw object id: 20 bytes for SHA-1, not hex
//
// repeated until the end of the content.
type TreeEntry struct {
	// Mode is the entry's file mode, e.g. 0o100644 for a regular file,
	// 0o40000 for a directory, 0o160000 for a submodule commit.
	Mode uint32
	Name string
	// Hash is the hex id of the referenced object.
	Hash string
}

// IsDir reports whether the entry refers to a subtree.
func (e TreeEntry) IsDir() bool {
	return e.Mode&0o170000 == 0o40000
}

// ParseTree decodes a tree object's content (without the "tree <size>" object
// header). The parser walks the records sequentially and fails if a delimiter
// is missing or the buffer ends inside a record.
func ParseTree(content []byte) ([]TreeEntry, error) {
	reader := bufio.NewReader(bytes.NewReader(content))

	var entries []TreeEntry
	for {
		modeStr, err := reader.ReadString(' ')
		if err != nil {
			if errors.Is(err, io.EOF) && len(modeStr) == 0 {
				// Clean end between records.
				break
			}
			return nil, fmt.Errorf("%w: no space after mode", ErrBadTree)
		}
		modeStr = modeStr[:len(modeStr)-1] // ReadString includes delim
		mode, err := strconv.ParseUint(modeStr, 8, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid mode %q", ErrBadTree, modeStr)
		}

		name, err := reader.ReadString(0)
		if err != nil {
			return nil, fmt.Errorf("%w: no NUL after name", ErrBadTree)
		}
		name = name[:len(name)-1] // ReadString includes delim

		var id [20]byte
		if _, err := io.ReadFull(reader, id[:]); err != nil {
			return nil, fmt.Errorf("%w: incomplete object id for %q", ErrBadTree, name)
		}

		entries = append(entries, TreeEntry{
			Mode: uint32(mode),
			Name: name,
			Hash: hex.EncodeToString(id[:]),
		})
	}

	return entries, nil
}

// SerializeTree encodes tree entries back into the byte form that is hashed
// and stored. Entries are written in the order given; call SortTreeEntries
// first when building a new tree, or the id will not match Git's.
func SerializeTree(entries []TreeEntry) ([]byte, error) {
	var buf bytes.Buffer

	for _, entry := range entries {
		raw, err := hex.DecodeString(entry.Hash)
		if err != nil || len(raw) != 20 {
			return nil, fmt.Errorf("%w: entry %q has invalid object id %q", ErrBadTree, entry.Name, entry.Hash)
		}

		buf.WriteString(strconv.FormatUint(uint64(entry.Mode), 8))
		buf.WriteByte(' ')
		buf.WriteString(entry.Name)
		buf.WriteByte(0)
		buf.Write(raw)
	}

	return buf.Bytes(), nil
}

// SortTreeEntries sorts entries into Git's canonical tree order. Names are
// compared byte-wise, with directories compared as if their name ended in
// '/'. Git rejects trees that are not in this order, and an unsorted tree
// hashes to a different id than the same tree sorted.
func SortTreeEntries(entries []TreeEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return treeSortKey(entries[i]) < treeSortKey(entries[j])
	})
}

func treeSortKey(e TreeEntry) string {
	if e.IsDir() {
		return e.Name + "/"
	}
	return e.Name
}
