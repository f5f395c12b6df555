package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/aretw0/citylink/pkg/adapters/memory"
	"github.com/aretw0/citylink/pkg/domain"
)

func TestStore_LockLifecycle(t *testing.T) {
	s := New(memory.NewChannel())
	ctx := context.Background()
	count := 2000

	for i := 0; i < count; i++ {
		code := fmt.Sprintf("C%d", i)
		_ = s.Save(ctx, code, domain.NewSession(code, "h"))
		_ = s.Delete(ctx, code)
	}

	if n := len(s.locks); n != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory after Delete", n)
	}
}

func TestStore_OptimisticSavesAreSerialized(t *testing.T) {
	s := New(memory.NewChannel(), WithOptimisticConcurrency())
	ctx := context.Background()
	if err := s.Save(ctx, "RACE", domain.NewSession("RACE", "h")); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess := domain.NewSession("RACE", "h")
			sess.Version = 1
			if s.Save(ctx, "RACE", sess) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one save from version 1 to win, got %d", wins)
	}
}
