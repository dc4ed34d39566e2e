// Package globaltime is the process clock. Production code reads it through
// Now/UTC; tests pin it with Freeze and restore it with Reset.
package globaltime

import (
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	nowFunc = time.Now
)

// Now returns the current time from the active clock.
func Now() time.Time {
	mu.RLock()
	defer mu.RUnlock()
	return nowFunc()
}

// UTC returns Now in UTC.
func UTC() time.Time {
	return Now().UTC()
}

// Freeze pins the clock to a fixed instant until Reset is called.
func Freeze(t time.Time) {
	mu.Lock()
	defer mu.Unlock()
	nowFunc = func() time.Time { return t }
}

// Reset restores the wall clock.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	nowFunc = time.Now
}
