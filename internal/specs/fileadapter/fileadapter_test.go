package fileadapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statsig-io/go-server-core/internal/specs"
)

func writeFile(t *testing.T, path string, lcut int) {
	t.Helper()
	content := []byte(`{"time": ` + itoa(lcut) + `, "feature_gates": [], "dynamic_configs": [], "layer_configs": []}`)
	require.NoError(t, os.WriteFile(path, content, 0o644))
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

func TestStartLoadsInitialFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dcs.json")
	writeFile(t, path, 10)

	store := specs.NewStore(nil)
	a := New(path, store, nil)
	require.NoError(t, a.Start(context.Background()))

	lcut, ok := store.CurrentLCUT()
	assert.True(t, ok)
	assert.Equal(t, uint64(10), lcut)
}

func TestManuallySyncSpecsSkipsUnchangedMtime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dcs.json")
	writeFile(t, path, 10)

	store := specs.NewStore(nil)
	a := New(path, store, nil)
	require.NoError(t, a.Start(context.Background()))

	// the file is left untouched after Start's first read; a second sync
	// without any mtime change must not re-read.
	require.NoError(t, a.ManuallySyncSpecs(context.Background()))
	lcut, _ := store.CurrentLCUT()
	assert.Equal(t, uint64(10), lcut)
}

func TestManuallySyncSpecsPicksUpModification(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dcs.json")
	writeFile(t, path, 10)

	store := specs.NewStore(nil)
	a := New(path, store, nil)
	require.NoError(t, a.Start(context.Background()))

	time.Sleep(10 * time.Millisecond)
	writeFile(t, path, 20)
	require.NoError(t, a.ManuallySyncSpecs(context.Background()))

	lcut, _ := store.CurrentLCUT()
	assert.Equal(t, uint64(20), lcut)
}

func TestStartReportsMissingFile(t *testing.T) {
	var reported error
	store := specs.NewStore(nil)
	a := New("/nonexistent/path/dcs.json", store, func(err error) { reported = err })
	require.NoError(t, a.Start(context.Background()))
	assert.Error(t, reported)
}
