package debuglog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedSealed creates count sealed files plus an active file.
func seedSealed(t *testing.T, dir string, count int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for seq := 1; seq <= count; seq++ {
		path := filepath.Join(dir, fmt.Sprintf("%s.%d", testFileName, seq))
		require.NoError(t, os.WriteFile(path, []byte(testLine(seq)), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, testFileName), []byte(testLine(99)), 0o644))
}

func sealedSeqs(t *testing.T, s *Sink) []int {
	t.Helper()
	files, err := s.Files()
	require.NoError(t, err)
	var seqs []int
	for _, f := range files {
		if !f.Active {
			seqs = append(seqs, f.Seq)
		}
	}
	return seqs
}

func TestEnforce_MaxFiles(t *testing.T) {
	s, dir := newTestSink(t, 0)
	seedSealed(t, dir, 5)

	removed, errs := s.Enforce(RetentionPolicy{MaxFiles: 2})
	assert.Empty(t, errs)
	assert.Equal(t, 3, removed)
	assert.Equal(t, []int{4, 5}, sealedSeqs(t, s))

	_, err := os.Stat(filepath.Join(dir, testFileName))
	assert.NoError(t, err, "active file must survive")
}

func TestEnforce_MaxAge(t *testing.T) {
	s, dir := newTestSink(t, 0)
	seedSealed(t, dir, 4)

	old := time.Now().Add(-48 * time.Hour)
	for _, seq := range []int{1, 2} {
		path := filepath.Join(dir, fmt.Sprintf("%s.%d", testFileName, seq))
		require.NoError(t, os.Chtimes(path, old, old))
	}
	// an old active file is still never removed
	require.NoError(t, os.Chtimes(filepath.Join(dir, testFileName), old, old))

	removed, errs := s.Enforce(RetentionPolicy{MaxAge: 24 * time.Hour})
	assert.Empty(t, errs)
	assert.Equal(t, 2, removed)
	assert.Equal(t, []int{3, 4}, sealedSeqs(t, s))

	_, err := os.Stat(filepath.Join(dir, testFileName))
	assert.NoError(t, err)
}

func TestEnforce_BothBounds(t *testing.T) {
	s, dir := newTestSink(t, 0)
	seedSealed(t, dir, 5)
	old := time.Now().Add(-72 * time.Hour)
	path := filepath.Join(dir, testFileName+".5")
	require.NoError(t, os.Chtimes(path, old, old))

	removed, errs := s.Enforce(RetentionPolicy{MaxFiles: 3, MaxAge: time.Hour})
	assert.Empty(t, errs)
	assert.Equal(t, 3, removed)
	assert.Equal(t, []int{3, 4}, sealedSeqs(t, s))
}

func TestEnforce_NothingToDo(t *testing.T) {
	s, dir := newTestSink(t, 0)

	removed, errs := s.Enforce(RetentionPolicy{MaxFiles: 1})
	assert.Zero(t, removed)
	assert.Empty(t, errs)
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "retention must not create the directory")

	seedSealed(t, dir, 2)
	removed, errs = s.Enforce(RetentionPolicy{})
	assert.Zero(t, removed)
	assert.Empty(t, errs)
	assert.Equal(t, []int{1, 2}, sealedSeqs(t, s))
}

func TestEnforce_PartialFailure(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	s, dir := newTestSink(t, 0)
	seedSealed(t, dir, 4)
	require.NoError(t, os.Chmod(dir, 0o555))
	defer os.Chmod(dir, 0o755)

	removed, errs := s.Enforce(RetentionPolicy{MaxFiles: 1})
	assert.Zero(t, removed)
	require.Len(t, errs, 3, "every failed deletion is reported and the sweep continues")
	for _, err := range errs {
		assert.True(t, errors.Is(err, ErrRetention))
	}
}

func TestSink_RetainOnRotate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var reported int
	s := NewSink(SinkOptions{
		Directory:      dir,
		FileName:       testFileName,
		RotateBytes:    10,
		RetainOnRotate: true,
		Retention:      RetentionPolicy{MaxFiles: 2},
		OnRetention: func(removed int, errs []error) {
			reported += removed
			assert.Empty(t, errs)
		},
	})
	defer s.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Append([]byte(testLine(i))))
	}

	assert.Equal(t, []int{9, 10}, sealedSeqs(t, s))
	assert.Equal(t, 8, reported)
}

func TestSink_SequenceSurvivesFullSweep(t *testing.T) {
	s, dir := newTestSink(t, 10)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Append([]byte(testLine(i))))
	}
	require.Equal(t, []int{1, 2, 3}, sealedSeqs(t, s))

	old := time.Now().Add(-48 * time.Hour)
	for _, seq := range []int{1, 2, 3} {
		path := filepath.Join(dir, fmt.Sprintf("%s.%d", testFileName, seq))
		require.NoError(t, os.Chtimes(path, old, old))
	}
	removed, errs := s.Enforce(RetentionPolicy{MaxAge: time.Hour})
	require.Empty(t, errs)
	require.Equal(t, 3, removed)
	require.Empty(t, sealedSeqs(t, s))

	require.NoError(t, s.Append([]byte(testLine(4))))
	assert.Equal(t, []int{4}, sealedSeqs(t, s))
}
