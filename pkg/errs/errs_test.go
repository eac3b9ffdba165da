package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errSample = New(KindDuplicate, "sample_exists")

func TestKindOfWrappedSentinel(t *testing.T) {
	err := fmt.Errorf("insert: %w", errSample)
	assert.Equal(t, KindDuplicate, KindOf(err))
	assert.True(t, errors.Is(err, errSample))
	assert.True(t, IsKind(err, KindDuplicate))
}

func TestWrapKeepsSentinelAndKind(t *testing.T) {
	err := Wrap(errSample, "household %s", "HH-2024-0001")
	assert.Equal(t, "sample_exists: household HH-2024-0001", err.Error())
	assert.True(t, errors.Is(err, errSample))
	assert.Equal(t, KindDuplicate, KindOf(err))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.False(t, IsKind(nil, KindInternal))
}
