package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDebouncesPDFChanges(t *testing.T) {
	dir := t.TempDir()
	w, err := New(100*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := make(chan struct{}, 10)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, dir, func(context.Context) { calls <- struct{}{} })
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "gst.pdf"), []byte("x"), 0o644))
	}

	select {
	case <-calls:
	case <-time.After(3 * time.Second):
		t.Fatal("expected a re-index callback")
	}
	select {
	case <-calls:
		t.Fatal("burst should be coalesced into one callback")
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestIsPDF(t *testing.T) {
	assert.True(t, isPDF("/x/Report.PDF"))
	assert.False(t, isPDF("/x/report.pdf.tmp"))
}
