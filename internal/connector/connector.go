// Package connector opens the databases a project declares and hands them to tasks.
package connector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	tgerrors "github.com/maxkimambo/taskgraph/internal/errors"
	"github.com/maxkimambo/taskgraph/internal/logger"
	"github.com/maxkimambo/taskgraph/internal/project"

	_ "modernc.org/sqlite"
)

// Set is the open connections of one run, keyed by connector name.
type Set struct {
	mu  sync.RWMutex
	dbs map[string]*sql.DB
}

// Open connects every configured connector and pings it. On failure the
// connections opened so far are closed.
func Open(ctx context.Context, configs map[string]project.ConnectorConfig) (*Set, error) {
	s := &Set{dbs: make(map[string]*sql.DB, len(configs))}

	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cfg := configs[name]
		db, err := sql.Open(cfg.Driver, cfg.DSN)
		if err == nil {
			err = db.PingContext(ctx)
			if err != nil {
				db.Close()
			}
		}
		if err != nil {
			s.Close()
			return nil, tgerrors.NewConfigurationError(tgerrors.CodeConnectorOpen,
				fmt.Sprintf("failed to open connector %q", name), "Connector setup").
				WithContext("driver", cfg.Driver).
				WithOriginalError(err)
		}
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		s.dbs[name] = db

		logger.Op.WithFields(map[string]interface{}{
			"connector": name,
			"driver":    cfg.Driver,
		}).Debug("Connector opened")
	}

	return s, nil
}

// DB returns the connection pool of the named connector.
func (s *Set) DB(name string) (*sql.DB, error) {
	if s == nil {
		return nil, unknownConnector(name)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, ok := s.dbs[name]
	if !ok {
		return nil, unknownConnector(name)
	}
	return db, nil
}

func unknownConnector(name string) error {
	return tgerrors.NewConfigurationError(tgerrors.CodeUnknownConnector,
		fmt.Sprintf("unknown connector %q", name), "Connector lookup").
		WithTroubleshooting("Declare the connector under [connectors." + name + "] in project.toml")
}

// Names returns the open connector names in sorted order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.dbs))
	for name := range s.dbs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Query runs query on the named connector and returns each row as a column map.
func (s *Set) Query(ctx context.Context, name, query string, args ...any) ([]map[string]any, error) {
	db, err := s.DB(name)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query on %s failed: %w", name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan on %s failed: %w", name, err)
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// Exec runs stmt on the named connector and returns the number of affected rows.
func (s *Set) Exec(ctx context.Context, name, stmt string, args ...any) (int64, error) {
	db, err := s.DB(name)
	if err != nil {
		return 0, err
	}

	res, err := db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("exec on %s failed: %w", name, err)
	}
	return res.RowsAffected()
}

// Close closes every connection and joins their errors.
func (s *Set) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for name, db := range s.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	s.dbs = map[string]*sql.DB{}
	return errors.Join(errs...)
}
