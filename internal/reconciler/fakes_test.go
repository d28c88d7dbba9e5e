package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/storefront-checkout/internal/model"
	"github.com/Veraticus/storefront-checkout/internal/service"
)

const waitTimeout = 2 * time.Second

type fetchResult struct {
	err    error
	status model.Status
}

type fakeFetcher struct {
	results map[string][]fetchResult
	calls   map[string]int
	mu      sync.Mutex
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		results: make(map[string][]fetchResult),
		calls:   make(map[string]int),
	}
}

func (f *fakeFetcher) script(id string, results ...fetchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[id] = append(f.results[id], results...)
}

func (f *fakeFetcher) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

// GetStatus pops scripted results, repeating the last one.
func (f *fakeFetcher) GetStatus(_ context.Context, id string) (model.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	queue := f.results[id]
	if len(queue) == 0 {
		return "", errors.New("no scripted status")
	}
	next := queue[0]
	if len(queue) > 1 {
		f.results[id] = queue[1:]
	}
	return next.status, next.err
}

type fakeConn struct {
	ctx     context.Context
	handler service.FeedHandler
	fail    chan error
	id      string
}

func (c *fakeConn) open()               { c.handler.OnOpen() }
func (c *fakeConn) send(payload string) { c.handler.OnMessage([]byte(payload)) }
func (c *fakeConn) drop(err error)      { c.fail <- err }

func (c *fakeConn) closed() bool {
	return c.ctx.Err() != nil
}

type fakeFeed struct {
	opened chan *fakeConn
	conns  []*fakeConn
	mu     sync.Mutex
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{opened: make(chan *fakeConn, 32)}
}

func (f *fakeFeed) Subscribe(ctx context.Context, id string, handler service.FeedHandler) error {
	conn := &fakeConn{ctx: ctx, handler: handler, fail: make(chan error, 1), id: id}
	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.mu.Unlock()
	f.opened <- conn

	select {
	case <-ctx.Done():
		return nil
	case err := <-conn.fail:
		return err
	}
}

func (f *fakeFeed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeFeed) next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case conn := <-f.opened:
		return conn
	case <-time.After(waitTimeout):
		t.Fatal("no feed connection opened")
		return nil
	}
}

type fakeTimer struct {
	f       func()
	owner   *fakeTimers
	delay   time.Duration
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (t *fakeTimer) isStopped() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	return t.stopped
}

// fire runs the callback the way time.AfterFunc would, on its own goroutine.
func (t *fakeTimer) fire() {
	done := make(chan struct{})
	go func() {
		t.f()
		close(done)
	}()
	<-done
}

type fakeTimers struct {
	scheduled chan *fakeTimer
	mu        sync.Mutex
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{scheduled: make(chan *fakeTimer, 32)}
}

func (ft *fakeTimers) AfterFunc(d time.Duration, f func()) Timer {
	timer := &fakeTimer{f: f, owner: ft, delay: d}
	ft.scheduled <- timer
	return timer
}

func (ft *fakeTimers) next(t *testing.T) *fakeTimer {
	t.Helper()
	select {
	case timer := <-ft.scheduled:
		return timer
	case <-time.After(waitTimeout):
		t.Fatal("no reconnect scheduled")
		return nil
	}
}

type recorder struct {
	updates []Update
	mu      sync.Mutex
}

func (r *recorder) record(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) all() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.updates...)
}

type failingStore struct {
	service.KVStore
}

func (failingStore) Set(context.Context, string, string) error {
	return errors.New("disk full")
}
