package ctxstore

import (
	"context"
)

type runIDStruct struct {
	Name string
}

var runIDKey = &runIDStruct{Name: "run_id"}

// WithRunID tags everything done under ctx with the batch run it belongs to.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

func GetRunID(ctx context.Context) (string, bool) {
	val, ok := ctx.Value(runIDKey).(string)
	return val, ok
}
