package device

import (
	"fmt"
	"sort"
	"sync"

	"github.com/allape/gogger"
)

var l = gogger.New("device")

// Factory initializes a vendor runtime.
type Factory func() (Context, error)

type runtime struct {
	context Context
	refs    int
}

var (
	locker    sync.Locker = &sync.Mutex{}
	factories             = map[string]Factory{}
	runtimes              = map[string]*runtime{}
)

// Register makes a driver available by name. Registering a name twice replaces the factory,
// runtimes already acquired are not affected.
func Register(name string, factory Factory) {
	locker.Lock()
	defer locker.Unlock()
	factories[name] = factory
}

func Drivers() []string {
	locker.Lock()
	defer locker.Unlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Acquire returns the shared runtime of a driver, initializing it on first use.
// The runtime is closed when the last release runs. release is idempotent.
func Acquire(name string) (Context, func() error, error) {
	locker.Lock()
	defer locker.Unlock()

	rt, ok := runtimes[name]
	if !ok {
		factory, ok := factories[name]
		if !ok {
			return nil, nil, fmt.Errorf("unknown device driver: %s", name)
		}
		ctx, err := factory()
		if err != nil {
			return nil, nil, fmt.Errorf("initialize %s runtime: %w", name, err)
		}
		rt = &runtime{context: ctx}
		runtimes[name] = rt
		l.Info().Println("runtime", name, "initialized")
	}
	rt.refs++

	once := sync.Once{}
	release := func() error {
		var err error
		once.Do(func() {
			err = releaseRuntime(name, rt)
		})
		return err
	}

	return rt.context, release, nil
}

func releaseRuntime(name string, rt *runtime) error {
	locker.Lock()
	defer locker.Unlock()

	rt.refs--
	if rt.refs > 0 {
		return nil
	}
	if runtimes[name] == rt {
		delete(runtimes, name)
	}
	l.Info().Println("runtime", name, "shut down")
	return rt.context.Close()
}

// References reports how many holders a driver runtime currently has.
func References(name string) int {
	locker.Lock()
	defer locker.Unlock()
	if rt, ok := runtimes[name]; ok {
		return rt.refs
	}
	return 0
}
