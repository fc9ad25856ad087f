package repomap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/repomap/internal/ranking"
)

func writeRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		full := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func fixtureFiles() map[string]string {
	return map[string]string{
		"a.py": `def helper_function(x):
    return x * 2

def another_helper():
    pass
`,
		"b.py": `def main():
    helper_function(1)
    helper_function(2)
`,
		"c.py": `def unrelated_thing():
    pass
`,
	}
}

func newEngine(t *testing.T, root string, opts Options) *RepoMap {
	t.Helper()
	opts.Root = root
	if opts.MapTokens == 0 {
		opts.MapTokens = 1024
	}
	rm, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { rm.Close() })
	return rm
}

func allPaths(root string, files map[string]string) []string {
	var paths []string
	for p := range files {
		paths = append(paths, filepath.Join(root, p))
	}
	return paths
}

func TestNewRejectsMissingRoot(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Root: filepath.Join(t.TempDir(), "absent"), MapTokens: 1024})
	require.Error(t, err)
}

func TestNewRejectsFileRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	file := filepath.Join(root, "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := New(Options{Root: file, MapTokens: 1024})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestNewRejectsNegativeIterations(t *testing.T) {
	t.Parallel()

	_, err := New(Options{
		Root:      t.TempDir(),
		MapTokens: 1024,
		Ranking:   ranking.Config{MaxIterations: -5},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "iteration cap")
}

func TestGetRepoMapBasic(t *testing.T) {
	t.Parallel()

	files := fixtureFiles()
	root := writeRepo(t, files)
	rm := newEngine(t, root, Options{})

	out, err := rm.GetRepoMap(context.Background(), nil, allPaths(root, files), nil, nil, false)
	require.NoError(t, err)
	require.NotEmpty(t, out)

	assert.Contains(t, out, "a.py:")
	assert.Contains(t, out, "helper_function")
}

func TestGetRepoMapZeroBudget(t *testing.T) {
	t.Parallel()

	files := fixtureFiles()
	root := writeRepo(t, files)
	rm := newEngine(t, root, Options{MapTokens: -1})

	out, err := rm.GetRepoMap(context.Background(), nil, allPaths(root, files), nil, nil, false)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGetRepoMapNoFiles(t *testing.T) {
	t.Parallel()

	rm := newEngine(t, t.TempDir(), Options{})

	out, err := rm.GetRepoMap(context.Background(), nil, nil, nil, nil, false)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGetRepoMapDeterministic(t *testing.T) {
	t.Parallel()

	files := fixtureFiles()
	root := writeRepo(t, files)
	rm := newEngine(t, root, Options{})

	ctx := context.Background()
	paths := allPaths(root, files)
	first, err := rm.GetRepoMap(ctx, nil, paths, nil, nil, false)
	require.NoError(t, err)
	second, err := rm.GetRepoMap(ctx, nil, paths, nil, nil, false)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGetRepoMapChatFileGetsBareHeader(t *testing.T) {
	t.Parallel()

	files := fixtureFiles()
	root := writeRepo(t, files)
	rm := newEngine(t, root, Options{})

	out, err := rm.GetRepoMap(context.Background(),
		[]string{filepath.Join(root, "b.py")},
		[]string{filepath.Join(root, "a.py"), filepath.Join(root, "c.py")},
		nil, nil, false)
	require.NoError(t, err)
	require.NotEmpty(t, out)

	// The chat file's own definitions are already in the caller's context and
	// are not repeated; its presence shows as a bare header.
	assert.Contains(t, out, "\nb.py\n")
	assert.NotContains(t, out, "b.py:")
	assert.NotContains(t, out, "def main")
	assert.Contains(t, out, "helper_function")
}

func TestGetRepoMapChatSeedsRanking(t *testing.T) {
	t.Parallel()

	files := fixtureFiles()
	root := writeRepo(t, files)
	rm := newEngine(t, root, Options{})

	// b.py references helper_function, so with b.py in the chat, a.py must
	// outrank the unreferenced c.py.
	data, err := rm.GetRepoMapData(context.Background(),
		[]string{filepath.Join(root, "b.py")},
		[]string{filepath.Join(root, "a.py"), filepath.Join(root, "c.py")},
		nil, nil, false)
	require.NoError(t, err)
	require.NotNil(t, data)

	rankOf := func(path string) float64 {
		for _, fr := range data.Files {
			if fr.Path == path {
				return fr.Rank
			}
		}
		t.Fatalf("no rank for %s", path)
		return 0
	}
	assert.Greater(t, rankOf("a.py"), rankOf("c.py"))
}

func TestGetRepoMapMentionedIdent(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"use.py": `def main():
    alpha()
    beta()
`,
		"lib_one.py": `def alpha():
    pass
`,
		"lib_two.py": `def beta():
    pass
`,
	}
	root := writeRepo(t, files)
	rm := newEngine(t, root, Options{})

	data, err := rm.GetRepoMapData(context.Background(), nil, allPaths(root, files), nil,
		map[string]struct{}{"beta": {}}, false)
	require.NoError(t, err)
	require.NotNil(t, data)

	rankOf := func(path string) float64 {
		for _, fr := range data.Files {
			if fr.Path == path {
				return fr.Rank
			}
		}
		return 0
	}
	assert.Greater(t, rankOf("lib_two.py"), rankOf("lib_one.py"))
}

func TestGetRepoMapBudgetMonotone(t *testing.T) {
	t.Parallel()

	files := fixtureFiles()
	root := writeRepo(t, files)
	paths := allPaths(root, files)
	ctx := context.Background()

	var prev string
	for _, budget := range []int{2, 64, 4096} {
		rm := newEngine(t, root, Options{MapTokens: budget})
		out, err := rm.GetRepoMap(ctx, nil, paths, nil, nil, false)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(out), len(prev),
			"budget %d rendered less than the previous smaller budget", budget)
		prev = out
	}
}

func TestGetRepoMapTokenCounterFailure(t *testing.T) {
	t.Parallel()

	files := fixtureFiles()
	root := writeRepo(t, files)
	rm := newEngine(t, root, Options{
		TokenCounter: func(string) (int, error) { return 0, errors.New("tokenizer unavailable") },
	})

	out, err := rm.GetRepoMap(context.Background(), nil, allPaths(root, files), nil, nil, false)
	require.NoError(t, err)
	assert.NotEmpty(t, out, "failing counter must degrade, not abort")
}

func TestGetRepoMapTokenCounterPanic(t *testing.T) {
	t.Parallel()

	files := fixtureFiles()
	root := writeRepo(t, files)
	rm := newEngine(t, root, Options{
		TokenCounter: func(string) (int, error) { panic("tokenizer blew up") },
	})

	out, err := rm.GetRepoMap(context.Background(), nil, allPaths(root, files), nil, nil, false)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestGetRepoMapContextCanceled(t *testing.T) {
	t.Parallel()

	files := fixtureFiles()
	root := writeRepo(t, files)
	rm := newEngine(t, root, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rm.GetRepoMap(ctx, nil, allPaths(root, files), nil, nil, false)
	require.ErrorIs(t, err, context.Canceled)
}

func TestGetRepoMapCacheRefreshOnChange(t *testing.T) {
	t.Parallel()

	files := fixtureFiles()
	root := writeRepo(t, files)
	cacheDir := filepath.Join(t.TempDir(), "cache")
	paths := allPaths(root, files)
	ctx := context.Background()

	rm := newEngine(t, root, Options{CacheDir: cacheDir})
	first, err := rm.GetRepoMap(ctx, nil, paths, nil, nil, false)
	require.NoError(t, err)
	require.Contains(t, first, "helper_function")
	require.NoError(t, rm.Close())

	// Rewrite a.py with a different definition; a fresh engine over the same
	// cache must serve the new content, not the stale entry.
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"),
		[]byte("def replacement_helper(x):\n    return x\n"), 0o644))

	rm2, err := New(Options{Root: root, MapTokens: 1024, CacheDir: cacheDir})
	require.NoError(t, err)
	defer rm2.Close()

	second, err := rm2.GetRepoMap(ctx, nil, paths, nil, nil, false)
	require.NoError(t, err)
	assert.Contains(t, second, "replacement_helper")
	assert.NotContains(t, second, "def helper_function")
}

func TestGetRepoMapForceRefresh(t *testing.T) {
	t.Parallel()

	files := fixtureFiles()
	root := writeRepo(t, files)
	rm := newEngine(t, root, Options{ForceRefresh: true})

	out, err := rm.GetRepoMap(context.Background(), nil, allPaths(root, files), nil, nil, true)
	require.NoError(t, err)
	assert.Contains(t, out, "helper_function")
}

func TestGetRepoMapUnparsableFileDoesNotAbort(t *testing.T) {
	t.Parallel()

	files := fixtureFiles()
	files["notes.txt"] = "remember to call helper_function from main\n"
	files["broken.py"] = "def broken(:::\n"
	root := writeRepo(t, files)
	rm := newEngine(t, root, Options{})

	out, err := rm.GetRepoMap(context.Background(), nil, allPaths(root, files), nil, nil, false)
	require.NoError(t, err)
	assert.Contains(t, out, "helper_function")
}

func TestGetRepoMapData(t *testing.T) {
	t.Parallel()

	files := fixtureFiles()
	root := writeRepo(t, files)
	rm := newEngine(t, root, Options{})

	data, err := rm.GetRepoMapData(context.Background(), nil, allPaths(root, files), nil, nil, false)
	require.NoError(t, err)
	require.NotNil(t, data)

	assert.Equal(t, filepath.Base(root), data.RepoName)
	assert.Len(t, data.Files, 3)
	assert.NotEmpty(t, data.Tags)
	assert.NotEmpty(t, data.Dependencies)
}
