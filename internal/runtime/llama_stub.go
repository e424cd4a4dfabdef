//go:build !llama

package runtime

import "context"

// LlamaBuilt reports whether this binary carries the in-process llama runtime.
const LlamaBuilt = false

// LlamaLoader refuses to load without the 'llama' build tag, keeping default
// builds CGO-free.
type LlamaLoader struct {
	Resolver ModelResolver
	CtxSize  int
	Threads  int
}

func (l LlamaLoader) Load(ctx context.Context, userID string) (Runtime, error) {
	return nil, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}
