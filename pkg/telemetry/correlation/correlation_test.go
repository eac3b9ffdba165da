package correlation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureKeepsExistingID(t *testing.T) {
	ctx := WithID(context.Background(), "run-1")
	ctx, id := Ensure(ctx)
	assert.Equal(t, "run-1", id)
	assert.Equal(t, "run-1", ID(ctx))
}

func TestEnsureGeneratesID(t *testing.T) {
	ctx, id := Ensure(context.Background())
	assert.Len(t, id, 26)
	assert.Equal(t, id, ID(ctx))
}

func TestWithEmptyIDIsNoop(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithID(ctx, ""))
	assert.Empty(t, ID(ctx))
}
