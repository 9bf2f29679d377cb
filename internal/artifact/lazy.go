package artifact

import "sync"

// LazyStore defers loading until the first lookup, so commands that never
// deploy do not require an artifacts directory.
type LazyStore struct {
	dir             string
	defaultCompiler string

	once  sync.Once
	store *Store
	err   error
}

func NewLazyStore(dir, defaultCompiler string) *LazyStore {
	return &LazyStore{dir: dir, defaultCompiler: defaultCompiler}
}

func (l *LazyStore) Get(ref string) (Artifact, error) {
	l.once.Do(func() {
		l.store, l.err = Load(l.dir, l.defaultCompiler)
	})
	if l.err != nil {
		return Artifact{}, l.err
	}
	return l.store.Get(ref)
}
