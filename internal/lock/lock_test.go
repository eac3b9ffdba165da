package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBatchKey(t *testing.T) {
	assert.Equal(t, "aquabill:bills:batch:2024-03", BatchKey("2024-03"))
}

func TestNilLocker(t *testing.T) {
	var l *Locker
	assert.Nil(t, NewLocker(nil))

	_, ok, err := l.TryLock(context.Background(), BatchKey("2024-03"), time.Minute)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, ok)
	assert.NoError(t, l.Release(context.Background(), BatchKey("2024-03"), "token"))
}
