package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLock_SecondHolderIsRejected(t *testing.T) {
	dir := t.TempDir()

	first := NewRunLock(dir)
	acquired, err := first.TryLock()
	require.NoError(t, err)
	require.True(t, acquired)

	second := NewRunLock(dir)
	acquired, err = second.TryLock()
	require.NoError(t, err)
	assert.False(t, acquired)

	require.NoError(t, first.Unlock())

	acquired, err = second.TryLock()
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, second.Unlock())
}

func TestRunLock_UnlockWithoutLockIsSafe(t *testing.T) {
	l := NewRunLock(t.TempDir())
	assert.NoError(t, l.Unlock())
}
