//go:build sqlite

package checkpoint

func newSQLiteStore(path string) (Store, error) {
	return NewSQLiteStore(path), nil
}
