package resultstore

import (
	"context"
	"fmt"
)

type Writer interface {
	Write(ctx context.Context, key, contentType string, data []byte) (bool, error)
}

// Mirror writes to Primary first and then to Secondary. The primary decides whether
// the result counts as written.
type Mirror struct {
	Primary   Writer
	Secondary Writer
}

func (m *Mirror) Write(ctx context.Context, key, contentType string, data []byte) (bool, error) {
	written, err := m.Primary.Write(ctx, key, contentType, data)
	if err != nil {
		return false, err
	}

	if _, err := m.Secondary.Write(ctx, key, contentType, data); err != nil {
		return written, fmt.Errorf("failed to mirror result: %w", err)
	}

	return written, nil
}
