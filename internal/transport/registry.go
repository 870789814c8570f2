package transport

import (
	"fmt"
	"sort"
	"sync"

	logx "wabot/pkg/logx"
)

// Options are passed to a driver factory at open time.
type Options struct {
	Log logx.Logger
}

// Factory constructs a provider for one driver.
type Factory func(opts Options) (Provider, error)

var (
	driversMu sync.RWMutex
	drivers   = map[string]Factory{}
)

// Register makes a driver available by name. It follows the database/sql
// convention: drivers call it from an init func, and registering the same
// name twice panics.
func Register(name string, f Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if f == nil {
		panic("transport: Register factory is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("transport: Register called twice for driver " + name)
	}
	drivers[name] = f
}

// Open constructs the named driver's provider.
func Open(name string, opts Options) (Provider, error) {
	driversMu.RLock()
	f, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("transport: unknown driver %q (available: %v)", name, Drivers())
	}
	return f(opts)
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	out := make([]string, 0, len(drivers))
	for name := range drivers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
