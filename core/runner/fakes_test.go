package runner

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/josephlewis42/rlsweep/core/store"
)

// fakeLauncher pretends to be the trainer.
type fakeLauncher struct {
	// exitCodes holds the exit code of each attempt by run index, missing
	// entries exit 0.
	exitCodes map[int][]int
	// block makes the run wait for its context to be done.
	block map[int]bool
	delay time.Duration

	mu        sync.Mutex
	calls     []Invocation
	active    int
	maxActive int
}

func (f *fakeLauncher) Launch(ctx context.Context, inv Invocation) (Outcome, error) {
	f.mu.Lock()
	attempt := 0
	for _, c := range f.calls {
		if c.Run.Index == inv.Run.Index {
			attempt++
		}
	}
	f.calls = append(f.calls, inv)
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	fmt.Fprintf(inv.Stdout, "training %s seed %d\n", inv.Run.EnvID, inv.Run.Seed)

	if f.block[inv.Run.Index] {
		<-ctx.Done()
		return Outcome{ExitCode: -1}, ctx.Err()
	}

	if f.delay > 0 {
		timer := time.NewTimer(f.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Outcome{ExitCode: -1}, ctx.Err()
		case <-timer.C:
		}
	}

	code := 0
	if codes := f.exitCodes[inv.Run.Index]; attempt < len(codes) {
		code = codes[attempt]
	}
	if code != 0 {
		return Outcome{ExitCode: code}, fmt.Errorf("exit status %d", code)
	}
	return Outcome{PeakRSS: 1024}, nil
}

func (f *fakeLauncher) launchedIndices() []int {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []int
	for _, c := range f.calls {
		out = append(out, c.Run.Index)
	}
	return out
}

// memStore is an in-memory ResultStore.
type memStore struct {
	mu      sync.Mutex
	records map[string]map[int]store.Record
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]map[int]store.Record)}
}

func (m *memStore) SaveRecord(ctx context.Context, r store.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[r.SweepKey] == nil {
		m.records[r.SweepKey] = make(map[int]store.Record)
	}
	m.records[r.SweepKey][r.Index] = r
	return nil
}

func (m *memStore) IndicesWithStatus(ctx context.Context, sweepKey, status string) (map[int]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[int]bool)
	for idx, r := range m.records[sweepKey] {
		if r.Status == status {
			out[idx] = true
		}
	}
	return out, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
