package recommender

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Artifact Watcher Tests
// =============================================================================

// installArtifacts writes a minimal content generation into dir, manifest
// last, mimicking what a rebuild install does.
func installArtifacts(t *testing.T, dir, runID string) {
	t.Helper()

	matrix := NewEmbeddingMatrix(2)
	require.NoError(t, matrix.Append([]float32{1, 0}), "Append")
	index, err := NewIDIndex([]int64{1})
	require.NoError(t, err, "NewIDIndex")
	require.NoError(t, SaveEmbeddings(dir, matrix, index), "SaveEmbeddings")
	require.NoError(t, SaveManifest(dir, &Manifest{RunID: runID, Books: 1, Dimension: 2}), "SaveManifest")
}

func TestArtifactWatcher_ReloadsOnManifestInstall(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.DiscardHandler)

	engine := newTestEngine(t, newStubCatalog())

	watcher, err := NewArtifactWatcher(dir, engine, logger)
	require.NoError(t, err, "NewArtifactWatcher")
	defer watcher.Close()

	installArtifacts(t, dir, "run-1")

	require.Eventually(t, func() bool {
		return engine.Artifacts().RunID() == "run-1"
	}, 5*time.Second, 20*time.Millisecond, "watcher should install the new generation")
	assert.True(t, engine.Artifacts().HasContent(), "reloaded set carries embeddings")
}

func TestArtifactWatcher_PicksUpSuccessiveGenerations(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.DiscardHandler)

	engine := newTestEngine(t, newStubCatalog())

	watcher, err := NewArtifactWatcher(dir, engine, logger)
	require.NoError(t, err, "NewArtifactWatcher")
	defer watcher.Close()

	installArtifacts(t, dir, "run-1")
	require.Eventually(t, func() bool {
		return engine.Artifacts().RunID() == "run-1"
	}, 5*time.Second, 20*time.Millisecond, "first generation installed")

	installArtifacts(t, dir, "run-2")
	require.Eventually(t, func() bool {
		return engine.Artifacts().RunID() == "run-2"
	}, 5*time.Second, 20*time.Millisecond, "second generation replaces the first")
}

func TestArtifactWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.DiscardHandler)

	engine := newTestEngine(t, newStubCatalog())
	engine.Install(contentSet(t, []int64{9}, [][]float32{{1, 0}}))
	before := engine.Artifacts()

	watcher, err := NewArtifactWatcher(dir, engine, logger)
	require.NoError(t, err, "NewArtifactWatcher")
	defer watcher.Close()

	// Blob writes without a manifest must not trigger a reload.
	matrix := NewEmbeddingMatrix(2)
	require.NoError(t, matrix.Append([]float32{0, 1}), "Append")
	index, idxErr := NewIDIndex([]int64{1})
	require.NoError(t, idxErr, "NewIDIndex")
	require.NoError(t, SaveEmbeddings(dir, matrix, index), "SaveEmbeddings")

	time.Sleep(3 * reloadDebounce)
	assert.Same(t, before, engine.Artifacts(), "snapshot unchanged without a manifest event")
}
