package ctxstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunID(t *testing.T) {
	_, ok := GetRunID(context.Background())
	assert.False(t, ok)

	ctx := WithRunID(context.Background(), "run-1")

	runID, ok := GetRunID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "run-1", runID)

	runID, _ = GetRunID(WithRunID(ctx, "run-2"))
	assert.Equal(t, "run-2", runID)
}
