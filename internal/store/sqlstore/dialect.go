package sqlstore

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Dialect selects the SQL flavor: identifier quoting, placeholders, pagination
// and search syntax.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
)

// ParseDialect parses a dialect name.
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(s)); d {
	case SQLite, MySQL, Postgres:
		return d, nil
	case "sqlite3":
		return SQLite, nil
	case "postgresql", "pg":
		return Postgres, nil
	}
	return "", fmt.Errorf("unknown sql dialect %q", s)
}

// driverName is the database/sql driver registered for the dialect.
func (d Dialect) driverName() string {
	return string(d)
}

var validIdentifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func (d Dialect) quote(ident string) (string, error) {
	if len(ident) > 128 || !validIdentifierRe.MatchString(ident) {
		return "", fmt.Errorf("invalid identifier %q", ident)
	}
	if d == MySQL {
		return "`" + ident + "`", nil
	}
	return `"` + ident + `"`, nil
}

// placeholder returns the n-th (1-based) bind parameter.
func (d Dialect) placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// like returns the case-insensitive LIKE operator. SQLite and MySQL compare
// case-insensitively with plain LIKE under their default collations.
func (d Dialect) like() string {
	if d == Postgres {
		return "ILIKE"
	}
	return "LIKE"
}

func (d Dialect) escapeClause() string {
	if d == SQLite {
		return ` ESCAPE '\'`
	}
	return ""
}

// pagination renders LIMIT/OFFSET. A zero limit means no limit.
func (d Dialect) pagination(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	case offset > 0:
		switch d {
		case SQLite:
			return fmt.Sprintf(" LIMIT -1 OFFSET %d", offset)
		case MySQL:
			return fmt.Sprintf(" LIMIT 18446744073709551615 OFFSET %d", offset)
		}
		return fmt.Sprintf(" OFFSET %d", offset)
	}
	return ""
}

func escapeLike(s string) string {
	if !strings.ContainsAny(s, `%_\`) {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

// tsPrefixQuery turns free text into a to_tsquery prefix expression
// ("foo:* & bar:*"). It returns "" when no word survives.
func tsPrefixQuery(s string) string {
	var words []string
	for _, w := range strings.Fields(s) {
		w = strings.Map(func(r rune) rune {
			if r == '_' || r == '-' || ('0' <= r && r <= '9') || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || r > 127 {
				return r
			}
			return -1
		}, w)
		if w != "" {
			words = append(words, w+":*")
		}
	}
	return strings.Join(words, " & ")
}
