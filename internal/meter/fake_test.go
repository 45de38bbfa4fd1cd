package meter

import (
	"context"
	"errors"
	"sync"
)

// fakeTransport serves canned words per address.
type fakeTransport struct {
	mu     sync.Mutex
	words  map[uint16][]uint16
	errs   map[uint16]error
	calls  []uint16
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		words: make(map[uint16][]uint16),
		errs:  make(map[uint16]error),
	}
}

func (f *fakeTransport) set(address uint16, words ...uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.words[address] = words
}

func (f *fakeTransport) fail(address uint16, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[address] = err
}

func (f *fakeTransport) ReadInputRegisters(ctx context.Context, address, quantity uint16) ([]uint16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, address)
	if err := f.errs[address]; err != nil {
		return nil, err
	}
	w, ok := f.words[address]
	if !ok {
		return nil, errors.New("no response")
	}
	if len(w) > int(quantity) {
		w = w[:quantity]
	}
	out := make([]uint16, len(w))
	copy(out, w)
	return out, nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// factoryFor returns a factory that hands out the same fake every time.
func factoryFor(f *fakeTransport) TransportFactory {
	return func() (Transport, error) {
		return f, nil
	}
}
