package processor

import (
	"context"
	"sync"

	contracts "framefarm/internal/contracts/renderer/v1"
	"framefarm/internal/pkg/errors"
	"framefarm/internal/ports"
)

// InputHandler makes sure a chunk's project file is in the store before the
// renderer is asked to open it. Projects are immutable per session, so a
// key seen once is not looked up again.
type InputHandler struct {
	sp ports.StorageProvider

	mu   sync.Mutex
	seen map[string]bool
}

func NewInputHandler(sp ports.StorageProvider) *InputHandler {
	return &InputHandler{sp: sp, seen: make(map[string]bool)}
}

// EnsureProject returns a NotFound error when spec's project is missing.
func (ih *InputHandler) EnsureProject(ctx context.Context, spec contracts.ChunkSpec) error {
	key := spec.ProjectObjectKey

	ih.mu.Lock()
	ok := ih.seen[key]
	ih.mu.Unlock()
	if ok {
		return nil
	}

	objs, err := ih.sp.ListObjects(ctx, key)
	if err != nil {
		return errors.Wrap(err, "inputs.project", "list project")
	}
	for _, o := range objs {
		if o.Key == key {
			ih.mu.Lock()
			ih.seen[key] = true
			ih.mu.Unlock()
			return nil
		}
	}
	return errors.NotFound("project", key)
}
