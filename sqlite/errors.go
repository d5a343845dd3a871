package sqlite

import "errors"

var (
	// ErrDBRequired is returned when a nil *sql.DB is provided.
	ErrDBRequired = errors.New("changesync sqlite: db is required")
	// ErrPathRequired is returned when Open is called without a database path.
	ErrPathRequired = errors.New("changesync sqlite: database path is required")
	// ErrExecutorRequired is returned when Enqueue is called with a nil executor.
	ErrExecutorRequired = errors.New("changesync sqlite: executor is required")
	// ErrTableNameRequired is returned when the table name is empty.
	ErrTableNameRequired = errors.New("changesync sqlite: table name is required")
	// ErrInvalidTableName is returned when the table name has disallowed characters.
	ErrInvalidTableName = errors.New("changesync sqlite: invalid table name")
	// ErrSchemaTooNew is returned when the database was migrated by a newer release.
	ErrSchemaTooNew = errors.New("changesync sqlite: database schema is newer than supported")
)
