package queue

import "context"

// Confirmer approves large enqueue bursts before anything is queued.
type Confirmer interface {
	Confirm(ctx context.Context, count int) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, count int) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, count int) (bool, error) {
	return f(ctx, count)
}

// Confirmed returns a Confirmer with a fixed answer, used when the caller
// already decided (an HTTP confirm flag, a --yes switch).
func Confirmed(answer bool) Confirmer {
	return ConfirmFunc(func(context.Context, int) (bool, error) {
		return answer, nil
	})
}
