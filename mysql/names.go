package mysql

import (
	"fmt"
	"strings"
)

// maxIdentifierLen is the MySQL limit for schema and table names.
const maxIdentifierLen = 64

// checkTableName accepts "table" or "schema.table" built from ASCII letters, digits and
// underscores, so the name can be interpolated into queries unquoted.
func checkTableName(name string) (string, error) {
	if name == "" {
		return "", ErrTableNameRequired
	}
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("%w: %q has more than schema and table", ErrInvalidTableName, name)
	}
	for _, part := range parts {
		if part == "" || len(part) > maxIdentifierLen {
			return "", fmt.Errorf("%w: %q", ErrInvalidTableName, name)
		}
		if i := strings.IndexFunc(part, notIdentifierRune); i >= 0 {
			return "", fmt.Errorf("%w: %q at offset %d", ErrInvalidTableName, name, i)
		}
	}

	return name, nil
}

func notIdentifierRune(r rune) bool {
	return r != '_' && (r < '0' || r > '9') && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z')
}
