package core

// upload_limiter.go bounds how many workbooks are parsed at once.
//
// Parsing holds the whole workbook in memory, so the limiter caps parallel
// parses. When every slot is taken a caller waits up to maxWait before
// failing with ErrTooManyUploads. WaitForDrain lets shutdown wait for
// in-flight parses.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyUploads is returned when no parse slot frees up in time.
var ErrTooManyUploads = errors.New("too many uploads in progress, please try again later")

const (
	DefaultMaxConcurrentUploads = 4
	DefaultMaxWaitTime          = 15 * time.Second
)

// UploadLimiter is a counting semaphore for workbook parsing.
type UploadLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewUploadLimiter allows at most maxConcurrent parses. Non-positive
// arguments select the defaults.
func NewUploadLimiter(maxConcurrent int, maxWait time.Duration) *UploadLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentUploads
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &UploadLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire takes a slot. The caller must Release it.
func (l *UploadLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyUploads
	}
}

// Release frees a slot taken by Acquire.
func (l *UploadLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	<-l.semaphore
}

// ActiveCount returns the number of parses in progress.
func (l *UploadLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// MaxConcurrent returns the slot count.
func (l *UploadLimiter) MaxConcurrent() int {
	return cap(l.semaphore)
}

// Available returns the number of free slots.
func (l *UploadLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until no parse is running or ctx is done.
func (l *UploadLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
