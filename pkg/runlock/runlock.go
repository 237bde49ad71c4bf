// Package runlock garante que só uma checagem rode por vez.
//
// Local serve para um processo único. Redis coordena várias réplicas do
// servidor HTTP apontando para o mesmo portal.
package runlock

import (
	"context"
	"sync"
)

// Coordinator decide se uma nova execução pode começar. Quando ok é false a
// execução deve ser recusada, nunca enfileirada.
type Coordinator interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// Local é um Coordinator em memória.
type Local struct {
	mu sync.Mutex
}

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) TryAcquire(ctx context.Context) (func(), bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if !l.mu.TryLock() {
		return nil, false, nil
	}

	var once sync.Once
	return func() { once.Do(l.mu.Unlock) }, true, nil
}
