package relational

import (
	"fmt"
	"strings"
)

// Dialect selects the placeholder syntax of the target database.
type Dialect string

const (
	// DialectPostgres uses numbered placeholders ($1, $2, ...).
	DialectPostgres Dialect = "postgres"
	// DialectMySQL uses positional placeholders (?).
	DialectMySQL Dialect = "mysql"
)

// ParseDialect returns the dialect for a database type name.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	default:
		return "", fmt.Errorf("unsupported sql dialect: %s", name)
	}
}

// Placeholder returns the placeholder for the n-th argument (1-based).
func (d Dialect) Placeholder(n int) string {
	if d == DialectMySQL {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

// System returns the OpenTelemetry db.system value.
func (d Dialect) System() string {
	if d == DialectMySQL {
		return "mysql"
	}
	return "postgresql"
}
