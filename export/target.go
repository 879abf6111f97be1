package export

import (
	"bytes"
	"context"
	"fmt"
)

// Target is one object storage destination an export can fan out to.
// Name is used only for error attribution when a multi-backend upload
// partially fails (spec.md-adjacent §7 pattern: best-effort, not
// first-error-aborts).
type Target struct {
	Name   string
	Upload func(ctx context.Context, key string, body *bytes.Buffer) error
}

func wrapErr(name, key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("export[%s]: upload %s: %w", name, key, err)
}
