package checkpoint

import "fmt"

func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}
