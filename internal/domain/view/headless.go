package view

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrViewClosed is returned by operations on a closed headless view.
var ErrViewClosed = errors.New("view is closed")

// HeadlessFactory creates in-memory views. It backs the control API and tests
// where no windowing system is attached.
type HeadlessFactory struct {
	mu    sync.Mutex
	views []*HeadlessView

	// FailCreate, when set, makes CreateView fail with the returned error.
	FailCreate func(viewModel any) error
}

// NewHeadlessFactory creates an empty factory
func NewHeadlessFactory() *HeadlessFactory {
	return &HeadlessFactory{}
}

// CreateView implements Factory
func (f *HeadlessFactory) CreateView(ctx context.Context, viewModel any) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.FailCreate != nil {
		if err := f.FailCreate(viewModel); err != nil {
			return nil, err
		}
	}
	v := &HeadlessView{Title: fmt.Sprintf("%T", viewModel)}
	v.alive.Store(true)

	f.mu.Lock()
	f.views = append(f.views, v)
	f.mu.Unlock()
	return v, nil
}

// Views returns every view created so far
func (f *HeadlessFactory) Views() []*HeadlessView {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*HeadlessView, len(f.views))
	copy(out, f.views)
	return out
}

// HeadlessView records the calls made on it.
type HeadlessView struct {
	Title string

	alive     atomic.Bool
	shown     atomic.Int32
	closed    atomic.Int32
	activated atomic.Int32

	// FailShow, when set, is returned from Show.
	FailShow error
}

// Show implements Handle
func (v *HeadlessView) Show(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if v.FailShow != nil {
		return v.FailShow
	}
	if !v.alive.Load() {
		return ErrViewClosed
	}
	v.shown.Add(1)
	return nil
}

// Close implements Handle. Closing twice is a no-op.
func (v *HeadlessView) Close(context.Context) error {
	if v.alive.CompareAndSwap(true, false) {
		v.closed.Add(1)
	}
	return nil
}

// Activate implements Handle
func (v *HeadlessView) Activate(context.Context) error {
	if !v.alive.Load() {
		return ErrViewClosed
	}
	v.activated.Add(1)
	return nil
}

// IsAlive implements Handle
func (v *HeadlessView) IsAlive() bool { return v.alive.Load() }

// Destroy simulates the windowing system destroying the view behind the
// tracker's back.
func (v *HeadlessView) Destroy() { v.alive.Store(false) }

// ShowCount returns how many times Show succeeded
func (v *HeadlessView) ShowCount() int { return int(v.shown.Load()) }

// CloseCount returns how many times Close actually closed the view
func (v *HeadlessView) CloseCount() int { return int(v.closed.Load()) }

// ActivateCount returns how many times Activate succeeded
func (v *HeadlessView) ActivateCount() int { return int(v.activated.Load()) }
