package internal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tt "github.com/gnolang/permcheck/internal/types"
)

type report struct {
	filename string
	issues   []tt.Issue
	err      error
}

func TestWatchReverifiesChangedPrograms(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	engine := NewEngine(nil, WithMaxLoopIterations(3))

	reports := make(chan report, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, engine.StartWatching(ctx, []string{dir}, func(filename string, issues []tt.Issue, err error) {
		reports <- report{filename, issues, err}
	}))
	assert.Error(t, engine.StartWatching(ctx, []string{dir}, nil), "second start must fail")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	path := filepath.Join(dir, "mixed.vir.yaml")
	require.NoError(t, os.WriteFile(path, []byte(mixedProgram), 0o644))

	select {
	case r := <-reports:
		assert.Equal(t, path, r.filename)
		require.NoError(t, r.err)
		assert.NotEmpty(t, r.issues)
	case <-time.After(5 * time.Second):
		t.Fatal("no report for the written program")
	}

	require.NoError(t, engine.StopWatching())
	assert.Error(t, engine.StopWatching())
}

func TestWatchMissingDirectory(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil)
	err := engine.StartWatching(context.Background(), []string{filepath.Join(t.TempDir(), "absent")}, nil)
	assert.ErrorContains(t, err, "error adding directory to watcher")

	// a failed start leaves the engine free to start again
	require.NoError(t, engine.StartWatching(context.Background(), []string{t.TempDir()}, nil))
	require.NoError(t, engine.StopWatching())
}
