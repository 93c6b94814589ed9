// ABOUTME: Tests for VACUUM INTO backups
// ABOUTME: The snapshot must reopen as a working store with every message

package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackup_WritesUsableSnapshot(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := newFileStore(t, filepath.Join(dir, "aiboard.db"), Options{})
	defer s.Close()
	require.NoError(t, s.CreateThread(ctx, testThread("t1")))
	require.NoError(t, s.InsertMessage(ctx, testMessage("m1", "t1", "before the backup", testEpoch)))

	backupDir := filepath.Join(dir, "backups")
	path, err := s.Backup(ctx, backupDir)
	require.NoError(t, err)
	assert.Equal(t, backupDir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "aiboard.db.bak."), "unexpected name %s", path)

	snap := newFileStore(t, path, Options{})
	defer snap.Close()
	msgs, err := snap.ListThreadMessages(ctx, "t1", MessageFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, messageIDs(msgs))

	got, err := snap.SearchMessages(ctx, "backup", "")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestBackup_DefaultsToDatabaseDir(t *testing.T) {
	dir := t.TempDir()
	s := newFileStore(t, filepath.Join(dir, "aiboard.db"), Options{})
	defer s.Close()

	path, err := s.Backup(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
}

func TestBackup_InMemory(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Backup(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrInvalidInput)
}
