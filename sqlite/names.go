package sqlite

import "fmt"

func sanitizeTableName(name string) (string, error) {
	if name == "" {
		return "", ErrTableNameRequired
	}
	for i, r := range name {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}
		if r >= '0' && r <= '9' && i > 0 {
			continue
		}

		return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
	}

	return name, nil
}
