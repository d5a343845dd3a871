package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// EngineLock holds the advisory lock of one engine on a dedicated connection.
type EngineLock struct {
	conn *sql.Conn
	name string
}

// LockEngine acquires the advisory lock for the table without waiting. It returns ErrEngineLocked
// when another session holds it. The lock lives as long as its connection, call Release on shutdown.
func (s *Store) LockEngine(ctx context.Context) (*EngineLock, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("changesync mysql: lock connection failed: %w", err)
	}

	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", s.cfg.LockName).Scan(&got); err != nil {
		return nil, errors.Join(fmt.Errorf("changesync mysql: acquire engine lock failed: %w", err), conn.Close())
	}
	if !got.Valid || got.Int64 == 0 {
		return nil, errors.Join(fmt.Errorf("%w: %s", ErrEngineLocked, s.cfg.LockName), conn.Close())
	}

	return &EngineLock{conn: conn, name: s.cfg.LockName}, nil
}

// Name returns the advisory lock name.
func (l *EngineLock) Name() string {
	return l.name
}

// Release frees the lock and returns the connection to the pool.
func (l *EngineLock) Release(ctx context.Context) error {
	var released sql.NullInt64
	err := l.conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", l.name).Scan(&released)
	if err != nil {
		err = fmt.Errorf("changesync mysql: release engine lock failed: %w", err)
	}

	return errors.Join(err, l.conn.Close())
}
