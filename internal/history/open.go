package history

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open creates and migrates the store selected by driver, matched case-insensitively.
func Open(ctx context.Context, driver, dsn string, capacity int) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverMemory:
		return NewMemory(capacity), nil
	case DriverSQLite:
		s, err := NewSQLite(dsn, capacity)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := NewPostgres(ctx, dsn, capacity)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("history: unknown driver %q", driver)
	}
}
