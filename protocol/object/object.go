// Package object defines the types of objects that can be stored in a Git
// repository, and the byte-level codecs for the structured ones.
//
// Git stores all content as objects in its object database. Each object has a
// type that determines how Git interprets its contents:
//
//   - Commit: a snapshot of the repository at a point in time, with metadata
//     about the commit (author, committer, message) and references to tree
//     and parent objects.
//   - Tree: a directory listing, referencing blobs and other trees.
//   - Blob: a file's contents.
//   - Tag: a reference to another object, usually a commit, with metadata.
//
// Two further types only appear inside pack files:
//   - OfsDelta: a delta whose base is identified by offset within the pack.
//   - RefDelta: a delta whose base is identified by object id.
//
// For more details, see:
// https://git-scm.com/book/en/v2/Git-Internals-Git-Objects
// https://git-scm.com/docs/pack-format#_object_types
package object

import "fmt"

// Type represents a Git object type. The values match Git's internal
// representation in pack files, where the type is stored as a 3-bit value.
type Type uint8

// The object types. Type 5 is reserved for future use, and 0 is invalid.
const (
	TypeInvalid  Type = 0 // 0b000
	TypeCommit   Type = 1 // 0b001
	TypeTree     Type = 2 // 0b010
	TypeBlob     Type = 3 // 0b011
	TypeTag      Type = 4 // 0b100
	TypeReserved Type = 5 // 0b101
	TypeOfsDelta Type = 6 // 0b110 - offset delta in pack file
	TypeRefDelta Type = 7 // 0b111 - reference delta in pack file
)

// String returns the conventional name of the object type, for debugging and
// error messages.
func (t Type) String() string {
	switch t {
	case TypeInvalid:
		return "OBJ_INVALID"
	case TypeCommit:
		return "OBJ_COMMIT"
	case TypeTree:
		return "OBJ_TREE"
	case TypeBlob:
		return "OBJ_BLOB"
	case TypeTag:
		return "OBJ_TAG"
	case TypeReserved:
		return "OBJ_RESERVED"
	case TypeOfsDelta:
		return "OBJ_OFS_DELTA"
	case TypeRefDelta:
		return "OBJ_REF_DELTA"
	default:
		return fmt.Sprintf("object.Type(%d)", uint8(t))
	}
}

// Bytes returns the type name as it appears in Git's object header,
// e.g. "commit", "tree", "blob".
func (t Type) Bytes() []byte {
	switch t {
	case TypeCommit:
		return []byte("commit")
	case TypeTree:
		return []byte("tree")
	case TypeBlob:
		return []byte("blob")
	case TypeTag:
		return []byte("tag")
	case TypeOfsDelta:
		return []byte("ofs-delta")
	case TypeRefDelta:
		return []byte("ref-delta")
	case TypeInvalid, TypeReserved:
		fallthrough
	default:
		return []byte("unknown")
	}
}

// IsDelta reports whether the type is one of the two pack-only delta types.
func (t Type) IsDelta() bool {
	return t == TypeOfsDelta || t == TypeRefDelta
}

// IsStandard reports whether the type is one of the four content types that
// exist outside pack files.
func (t Type) IsStandard() bool {
	switch t {
	case TypeCommit, TypeTree, TypeBlob, TypeTag:
		return true
	default:
		return false
	}
}
