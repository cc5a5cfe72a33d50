package graph

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hanpama/graft/internal/relation"
)

// Normalize converts a raw driver or client value to the canonical Go value for
// a column of type typ. nil stays nil.
func Normalize(typ relation.ColumnType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok && typ != relation.UUID {
		v = string(b)
	}
	switch typ {
	case relation.Int:
		return toInt(v)
	case relation.Float:
		return toFloat(v)
	case relation.Bool:
		return toBool(v)
	case relation.UUID:
		return toUUID(v)
	case relation.ID:
		return toID(v), nil
	default:
		return toString(v), nil
	}
}

// NormalizeRow converts the declared columns of raw into canonical values.
// Columns missing from raw are set to nil; undeclared columns are dropped.
func NormalizeRow(t *relation.EntityType, raw map[string]any) (Row, error) {
	row := make(Row, len(t.Columns))
	for _, c := range t.Columns {
		v, err := Normalize(c.Type, raw[c.Name])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.Name, c.Name, err)
		}
		row[c.Name] = v
	}
	return row, nil
}

// NormalizeKeys converts client supplied key values (usually GraphQL ID strings)
// to the canonical type of column c.
func NormalizeKeys(c *relation.Column, values []any) ([]Key, error) {
	out := make([]Key, 0, len(values))
	for _, v := range values {
		k, err := Normalize(c.Type, v)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

func toInt(v any) (any, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return uint64ToKey(uint64(n)), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return uint64ToKey(n), nil
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", n)
		}
		return i, nil
	case bool:
		if n {
			return int64(1), nil
		}
		return int64(0), nil
	}
	return nil, fmt.Errorf("cannot convert %T to integer", v)
}

func uint64ToKey(n uint64) any {
	if n <= math.MaxInt64 {
		return int64(n)
	}
	return n
}

func floatToInt(f float64) (any, error) {
	if f != math.Trunc(f) {
		return nil, fmt.Errorf("invalid integer %v", f)
	}
	return int64(f), nil
}

func toFloat(v any) (any, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float %q", n)
		}
		return f, nil
	}
	i, err := toInt(v)
	if err != nil {
		return nil, fmt.Errorf("cannot convert %T to float", v)
	}
	switch n := i.(type) {
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	}
	return nil, fmt.Errorf("cannot convert %T to float", v)
}

func toBool(v any) (any, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		p, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return nil, fmt.Errorf("invalid boolean %q", b)
		}
		return p, nil
	}
	i, err := toInt(v)
	if err != nil {
		return nil, fmt.Errorf("cannot convert %T to boolean", v)
	}
	return i != int64(0), nil
}

func toUUID(v any) (any, error) {
	switch u := v.(type) {
	case uuid.UUID:
		return u, nil
	case [16]byte:
		return uuid.UUID(u), nil
	case []byte:
		if len(u) == 16 {
			return uuid.FromBytes(u)
		}
		return uuid.ParseBytes(u)
	case string:
		return uuid.Parse(u)
	}
	return nil, fmt.Errorf("cannot convert %T to uuid", v)
}

// toID keeps integer ids as int64, including canonical decimal strings, so that
// ids sent by clients match integer keys read from the store.
func toID(v any) any {
	if s, ok := v.(string); ok {
		if isCanonicalInt(s) {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
		}
		return s
	}
	if n, err := toInt(v); err == nil {
		return n
	}
	return toString(v)
}

func isCanonicalInt(s string) bool {
	if s == "0" {
		return true
	}
	if strings.HasPrefix(s, "-") {
		s = s[1:]
	}
	if s == "" || s[0] == '0' {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case time.Time:
		return s.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return s.String()
	}
	return fmt.Sprint(v)
}
