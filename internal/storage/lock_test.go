package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".ftaudit")

	path, err := AcquireLock(dir, "ignore")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, LockFile), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var lock Lock
	require.NoError(t, json.Unmarshal(data, &lock))
	assert.Equal(t, "ignore", lock.Holder)
	assert.Equal(t, os.Getpid(), lock.PID)

	// This process is alive, so a second acquire is refused
	_, err = AcquireLock(dir, "explore")
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, ReleaseLock(path))
	require.NoError(t, ReleaseLock(path))
	require.NoError(t, ReleaseLock(""))

	_, err = AcquireLock(dir, "explore")
	assert.NoError(t, err)
}

func TestStaleLockIsTakenOver(t *testing.T) {
	dir := t.TempDir()
	hostname, err := os.Hostname()
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "dead process",
			data: mustJSON(t, Lock{Holder: "explore", PID: 99999999, Hostname: hostname, StartedAt: time.Now()}),
		},
		{
			name: "garbage",
			data: []byte("not json"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(filepath.Join(dir, LockFile), tt.data, 0644))
			path, err := AcquireLock(dir, "duplicates")
			require.NoError(t, err)
			require.NoError(t, ReleaseLock(path))
		})
	}
}

func TestRemoteHostCountsAsAlive(t *testing.T) {
	assert.True(t, isProcessAlive(99999999, "some-other-host.invalid"))
	assert.False(t, isProcessAlive(0, ""))
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
