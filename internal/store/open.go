// ABOUTME: Backend selection for the certificate store
// ABOUTME: Maps the configured driver name to a concrete Store implementation

package store

import "fmt"

// Supported driver names for Open.
const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bbolt"
)

// Open returns the Store for driver, rooted at path.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", DriverSQLite:
		return NewSQLiteStore(path)
	case DriverBolt:
		return NewBoltStore(path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
