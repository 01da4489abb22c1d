package refs_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhleyai/git/refs"
)

const (
	idA = "7217a7c7e582c46cec22a130adf4b9d7d950fba0"
	idB = "30d74d258442c7c65512eafab474568dd706c430"
)

func TestStoreBasics(t *testing.T) {
	store := refs.NewStore()

	_, err := store.Get("refs/heads/main")
	require.ErrorIs(t, err, refs.ErrRefNotFound)

	store.Add("refs/heads/main", idA, false)
	ref, err := store.Get("refs/heads/main")
	require.NoError(t, err)
	require.Equal(t, refs.Ref{Name: "refs/heads/main", Target: idA}, ref)

	// Add replaces; Update requires existence.
	store.Add("refs/heads/main", idB, false)
	ref, err = store.Get("refs/heads/main")
	require.NoError(t, err)
	require.Equal(t, idB, ref.Target)

	require.NoError(t, store.Update("refs/heads/main", idA))
	require.ErrorIs(t, store.Update("refs/heads/missing", idA), refs.ErrRefNotFound)

	require.NoError(t, store.Delete("refs/heads/main"))
	require.ErrorIs(t, store.Delete("refs/heads/main"), refs.ErrRefNotFound)
}

func TestStoreLists(t *testing.T) {
	store := refs.NewStore()
	store.Add("refs/heads/main", idA, false)
	store.Add("refs/heads/develop", idB, false)
	store.Add("refs/tags/v1.0.0", idA, false)
	store.Add("HEAD", "refs/heads/main", true)

	all := store.List()
	require.Len(t, all, 4)
	require.Equal(t, "HEAD", all[0].Name, "List is sorted by name")

	branches := store.ListBranches()
	require.Len(t, branches, 2)
	require.Equal(t, "refs/heads/develop", branches[0].Name)
	require.Equal(t, "refs/heads/main", branches[1].Name)

	tags := store.ListTags()
	require.Len(t, tags, 1)
	require.Equal(t, "refs/tags/v1.0.0", tags[0].Name)
}

func TestListMatching(t *testing.T) {
	store := refs.NewStore()
	store.Add("refs/heads/main", idA, false)
	store.Add("refs/heads/develop", idB, false)
	store.Add("refs/heads/feature/login", idA, false)
	store.Add("refs/tags/v1.0.0", idB, false)

	t.Run("star does not cross a slash", func(t *testing.T) {
		matched, err := store.ListMatching("refs/heads/*")
		require.NoError(t, err)
		require.Len(t, matched, 2)
		require.Equal(t, "refs/heads/develop", matched[0].Name)
		require.Equal(t, "refs/heads/main", matched[1].Name)
	})

	t.Run("nested pattern", func(t *testing.T) {
		matched, err := store.ListMatching("refs/heads/feature/*")
		require.NoError(t, err)
		require.Len(t, matched, 1)
		require.Equal(t, "refs/heads/feature/login", matched[0].Name)
	})

	t.Run("no matches", func(t *testing.T) {
		matched, err := store.ListMatching("refs/remotes/*")
		require.NoError(t, err)
		require.Empty(t, matched)
	})

	t.Run("invalid pattern", func(t *testing.T) {
		_, err := store.ListMatching("refs/heads/[")
		require.Error(t, err)
	})
}

func TestImportExport(t *testing.T) {
	store := refs.NewStore()
	store.Add("refs/heads/main", idA, false)
	store.Add("HEAD", "refs/heads/main", true)

	snapshot := store.Export()
	require.Len(t, snapshot, 2)

	restored := refs.NewStore()
	restored.Import(snapshot)
	require.Equal(t, snapshot, restored.Export())

	target, err := restored.Resolve("HEAD")
	require.NoError(t, err)
	require.Equal(t, idA, target)

	// Import upserts over existing refs.
	restored.Import([]refs.Ref{{Name: "refs/heads/main", Target: idB}})
	target, err = restored.Resolve("refs/heads/main")
	require.NoError(t, err)
	require.Equal(t, idB, target)
}

func TestResolve(t *testing.T) {
	store := refs.NewStore()
	store.Add("refs/heads/main", idA, false)
	store.Add("HEAD", "refs/heads/main", true)

	t.Run("direct", func(t *testing.T) {
		target, err := store.Resolve("refs/heads/main")
		require.NoError(t, err)
		require.Equal(t, idA, target)
	})

	t.Run("symbolic chain", func(t *testing.T) {
		target, err := store.Resolve("HEAD")
		require.NoError(t, err)
		require.Equal(t, idA, target)
	})

	t.Run("dangling symbolic ref", func(t *testing.T) {
		store.Add("refs/remotes/origin/HEAD", "refs/remotes/origin/gone", true)
		_, err := store.Resolve("refs/remotes/origin/HEAD")
		require.ErrorIs(t, err, refs.ErrRefNotFound)
	})

	t.Run("cycle", func(t *testing.T) {
		store.Add("refs/a", "refs/b", true)
		store.Add("refs/b", "refs/a", true)
		_, err := store.Resolve("refs/a")
		require.ErrorIs(t, err, refs.ErrCycle)
	})

	t.Run("self cycle", func(t *testing.T) {
		store.Add("refs/self", "refs/self", true)
		_, err := store.Resolve("refs/self")
		require.ErrorIs(t, err, refs.ErrCycle)
	})
}

func TestHEAD(t *testing.T) {
	store := refs.NewStore()

	_, err := store.HEAD()
	require.ErrorIs(t, err, refs.ErrRefNotFound)

	store.SetHEAD("refs/heads/main", true)
	head, err := store.HEAD()
	require.NoError(t, err)
	require.True(t, head.IsSymbolic)
	require.Equal(t, "refs/heads/main", head.Target)

	// Detached HEAD points straight at an object.
	store.SetHEAD(idA, false)
	head, err = store.HEAD()
	require.NoError(t, err)
	require.False(t, head.IsSymbolic)
	require.Equal(t, idA, head.Target)
}

func TestDefaultBranch(t *testing.T) {
	t.Run("symbolic HEAD wins", func(t *testing.T) {
		store := refs.NewStore()
		store.SetHEAD("refs/heads/trunk", true)
		store.Add("refs/heads/main", idA, false)

		branch, err := store.DefaultBranch()
		require.NoError(t, err)
		require.Equal(t, "trunk", branch)
	})

	t.Run("conventional fallbacks in order", func(t *testing.T) {
		store := refs.NewStore()
		store.Add("refs/heads/develop", idA, false)
		store.Add("refs/heads/master", idA, false)

		branch, err := store.DefaultBranch()
		require.NoError(t, err)
		require.Equal(t, "master", branch, "master outranks develop")

		store.Add("refs/heads/main", idA, false)
		branch, err = store.DefaultBranch()
		require.NoError(t, err)
		require.Equal(t, "main", branch, "main outranks master")
	})

	t.Run("no default branch", func(t *testing.T) {
		store := refs.NewStore()
		store.Add("refs/heads/feature", idA, false)

		_, err := store.DefaultBranch()
		require.ErrorIs(t, err, refs.ErrRefNotFound)
	})
}

func TestBranchesAndTags(t *testing.T) {
	store := refs.NewStore()

	require.NoError(t, store.CreateBranch("feature", idA))
	require.ErrorIs(t, store.CreateBranch("feature", idB), refs.ErrRefAlreadyExists)

	target, err := store.Resolve("refs/heads/feature")
	require.NoError(t, err)
	require.Equal(t, idA, target)

	require.NoError(t, store.CreateTag("v1.0.0", idB))
	require.ErrorIs(t, store.CreateTag("v1.0.0", idA), refs.ErrRefAlreadyExists)

	require.NoError(t, store.DeleteBranch("feature"))
	require.ErrorIs(t, store.DeleteBranch("feature"), refs.ErrRefNotFound)

	require.NoError(t, store.DeleteTag("v1.0.0"))
	require.ErrorIs(t, store.DeleteTag("v1.0.0"), refs.ErrRefNotFound)
}
