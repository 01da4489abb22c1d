// Package refs implements the reference resolver: a per-repository map from
// ref names to targets, with symbolic chain resolution.
//
// A Store is explicit per-repository state passed by handle into operations,
// not ambient global state. Concurrent reads are safe; writers are serialized
// by the store's lock so "at most one target per name" and cycle-freedom
// hold under concurrent mutation.
package refs

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrRefNotFound is returned when a requested ref does not exist, or a
	// symbolic chain ends at a ref that does not exist.
	ErrRefNotFound = errors.New("ref not found")
	// ErrRefAlreadyExists is returned when creating a branch or tag whose
	// name is taken.
	ErrRefAlreadyExists = errors.New("ref already exists")
	// ErrCycle is returned when a symbolic ref chain revisits a name.
	ErrCycle = errors.New("circular ref chain")
)

const (
	branchPrefix = "refs/heads/"
	tagPrefix    = "refs/tags/"

	// maxResolveDepth bounds chain following regardless of the visited set.
	maxResolveDepth = 64
)

// Ref is a single reference: a name mapped to either an object id or, for
// symbolic refs, another ref name. A symbolic chain must terminate at a
// non-symbolic ref without revisiting a name.
type Ref struct {
	Name string
	// Target is an object id in hex form, or a ref name when IsSymbolic.
	Target     string
	IsSymbolic bool
}

// Store holds one repository's refs.
type Store struct {
	mu   sync.RWMutex
	refs map[string]Ref
}

// NewStore creates an empty ref store.
func NewStore() *Store {
	return &Store{refs: make(map[string]Ref)}
}

// Add creates or replaces a ref.
func (s *Store) Add(name, target string, symbolic bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[name] = Ref{Name: name, Target: target, IsSymbolic: symbolic}
}

// Get returns the ref with the given name, without following symbolic
// chains; use Resolve for that.
func (s *Store) Get(name string) (Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.refs[name]
	if !ok {
		return Ref{}, fmt.Errorf("%w: %s", ErrRefNotFound, name)
	}
	return ref, nil
}

// Update points an existing ref at a new target. The ref keeps its symbolic
// flag; updating a missing ref is an error, unlike Add.
func (s *Store) Update(name, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.refs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRefNotFound, name)
	}
	ref.Target = target
	s.refs[name] = ref
	return nil
}

// Delete removes a ref.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refs[name]; !ok {
		return fmt.Errorf("%w: %s", ErrRefNotFound, name)
	}
	delete(s.refs, name)
	return nil
}

// List returns all refs, sorted by name.
func (s *Store) List() []Ref {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := make([]Ref, 0, len(s.refs))
	for _, ref := range s.refs {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs
}

// ListBranches returns the refs under refs/heads/, sorted by name.
func (s *Store) ListBranches() []Ref {
	return s.listPrefix(branchPrefix)
}

// ListTags returns the refs under refs/tags/, sorted by name.
func (s *Store) ListTags() []Ref {
	return s.listPrefix(tagPrefix)
}

func (s *Store) listPrefix(prefix string) []Ref {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var refs []Ref
	for name, ref := range s.refs {
		if strings.HasPrefix(name, prefix) {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs
}

// ListMatching returns the refs whose names match the glob pattern, sorted
// by name. Pattern syntax is path.Match's, so a '*' does not cross a '/':
// "refs/heads/*" matches branches but not "refs/heads/feature/x".
func (s *Store) ListMatching(pattern string) ([]Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var refs []Ref
	for name, ref := range s.refs {
		ok, err := path.Match(pattern, name)
		if err != nil {
			return nil, fmt.Errorf("invalid ref pattern %q: %w", pattern, err)
		}
		if ok {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

// Import upserts a batch of refs under a single lock, so a snapshot loaded
// from a persistence collaborator becomes visible atomically.
func (s *Store) Import(batch []Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ref := range batch {
		s.refs[ref.Name] = ref
	}
}

// Export returns a snapshot of every ref, sorted by name, suitable for
// handing back to persistence. Import(Export()) restores the store.
func (s *Store) Export() []Ref {
	return s.List()
}

// Resolve follows the symbolic chain starting at name until it reaches a
// non-symbolic ref, and returns that ref's object id. A chain that revisits
// a name fails with ErrCycle; the iteration count is bounded as well, so a
// store mutated under our feet cannot loop forever either.
func (s *Store) Resolve(name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visited := make(map[string]struct{})
	current := name
	for range maxResolveDepth {
		if _, seen := visited[current]; seen {
			return "", fmt.Errorf("%w: %s revisited while resolving %s", ErrCycle, current, name)
		}
		visited[current] = struct{}{}

		ref, ok := s.refs[current]
		if !ok {
			return "", fmt.Errorf("%w: %s (resolving %s)", ErrRefNotFound, current, name)
		}
		if !ref.IsSymbolic {
			return ref.Target, nil
		}
		current = ref.Target
	}
	return "", fmt.Errorf("%w: chain from %s exceeds %d links", ErrCycle, name, maxResolveDepth)
}

// HEAD returns the HEAD ref, unresolved.
func (s *Store) HEAD() (Ref, error) {
	return s.Get("HEAD")
}

// SetHEAD points HEAD at a target: a branch name for the usual symbolic
// HEAD, or an object id for a detached one.
func (s *Store) SetHEAD(target string, symbolic bool) {
	s.Add("HEAD", target, symbolic)
}

// DefaultBranch returns the repository's default branch name, without the
// refs/heads/ prefix. A symbolic HEAD names it directly; otherwise the
// conventional candidates are tried in order.
func (s *Store) DefaultBranch() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if head, ok := s.refs["HEAD"]; ok && head.IsSymbolic {
		if branch, found := strings.CutPrefix(head.Target, branchPrefix); found {
			return branch, nil
		}
	}

	for _, branch := range []string{"main", "master", "develop"} {
		if _, ok := s.refs[branchPrefix+branch]; ok {
			return branch, nil
		}
	}

	return "", fmt.Errorf("%w: no default branch", ErrRefNotFound)
}

// CreateBranch creates refs/heads/<name> pointing at an object id. It fails
// if the branch already exists.
func (s *Store) CreateBranch(name, target string) error {
	return s.create(branchPrefix+name, target)
}

// CreateTag creates refs/tags/<name> pointing at an object id. It fails if
// the tag already exists.
func (s *Store) CreateTag(name, target string) error {
	return s.create(tagPrefix+name, target)
}

func (s *Store) create(fullName, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refs[fullName]; ok {
		return fmt.Errorf("%w: %s", ErrRefAlreadyExists, fullName)
	}
	s.refs[fullName] = Ref{Name: fullName, Target: target}
	return nil
}

// DeleteBranch removes refs/heads/<name>.
func (s *Store) DeleteBranch(name string) error {
	return s.Delete(branchPrefix + name)
}

// DeleteTag removes refs/tags/<name>.
func (s *Store) DeleteTag(name string) error {
	return s.Delete(tagPrefix + name)
}
