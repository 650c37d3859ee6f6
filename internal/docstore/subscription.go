package docstore

import (
	"context"
	"sync"
)

// streamSub is the scoped handle returned by the live subscription
// methods. Cancelling stops the pump goroutine, which closes the
// underlying change stream on its way out.
type streamSub struct {
	cancel context.CancelFunc
	once   sync.Once
}

func newStreamSub(parent context.Context) (*streamSub, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &streamSub{cancel: cancel}, ctx
}

func (s *streamSub) Cancel() {
	s.once.Do(s.cancel)
}
