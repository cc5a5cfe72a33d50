package sqlstore

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hanpama/graft/internal/relation"
	"github.com/hanpama/graft/internal/store"
)

// selectBuilder renders one SELECT for an entity type.
type selectBuilder struct {
	dialect Dialect
	typ     *relation.EntityType
	where   []string
	// ranks render ORDER BY terms after all predicates so bind parameters
	// stay in text order.
	ranks []func() string
	args  []any
}

func (b *selectBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return b.dialect.placeholder(len(b.args))
}

func (b *selectBuilder) column(name string) (string, error) {
	if b.typ.Column(name) == nil {
		return "", fmt.Errorf("%s has no column %s", b.typ.Name, name)
	}
	return b.dialect.quote(name)
}

func (b *selectBuilder) predicate(p store.Predicate) error {
	switch p := p.(type) {
	case store.In:
		col, err := b.column(p.Column)
		if err != nil {
			return err
		}
		if len(p.Values) == 0 {
			b.where = append(b.where, "1 = 0")
			return nil
		}
		ph := make([]string, len(p.Values))
		for i, v := range p.Values {
			ph[i] = b.arg(bindValue(v))
		}
		b.where = append(b.where, col+" IN ("+strings.Join(ph, ", ")+")")
	case store.Eq:
		col, err := b.column(p.Column)
		if err != nil {
			return err
		}
		if p.Value == nil {
			b.where = append(b.where, col+" IS NULL")
			return nil
		}
		b.where = append(b.where, col+" = "+b.arg(bindValue(p.Value)))
	case store.Search:
		return b.search(p)
	default:
		return fmt.Errorf("unsupported predicate %T", p)
	}
	return nil
}

func (b *selectBuilder) search(s store.Search) error {
	cols := make([]string, 0, len(s.Terms))
	for c := range s.Terms {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	var ors []string
	for _, name := range cols {
		col, err := b.column(name)
		if err != nil {
			return err
		}
		term := s.Terms[name]
		switch {
		case s.Mode == store.Prefix && b.dialect == Postgres && tsPrefixQuery(term) != "":
			ors = append(ors, fmt.Sprintf("to_tsvector('simple', %s) @@ to_tsquery('simple', %s)", col, b.arg(tsPrefixQuery(term))))
			b.ranks = append(b.ranks,
				func() string { return fmt.Sprintf("%s ILIKE %s DESC", col, b.arg(escapeLike(term)+"%")) },
				func() string { return fmt.Sprintf("POSITION(%s IN %s) ASC", b.arg(term), col) })
		case s.Mode == store.Prefix:
			like, esc := b.dialect.like(), b.dialect.escapeClause()
			ors = append(ors, fmt.Sprintf("(%s %s %s%s OR %s %s %s%s)",
				col, like, b.arg(escapeLike(term)+"%"), esc,
				col, like, b.arg("% "+escapeLike(term)+"%"), esc))
			b.ranks = append(b.ranks, func() string {
				return fmt.Sprintf("CASE WHEN %s %s %s%s THEN 0 ELSE 1 END", col, like, b.arg(escapeLike(term)+"%"), esc)
			})
		default:
			ors = append(ors, fmt.Sprintf("%s %s %s%s", col, b.dialect.like(), b.arg("%"+escapeLike(term)+"%"), b.dialect.escapeClause()))
		}
	}
	if len(ors) == 0 {
		return nil
	}
	if len(ors) == 1 {
		b.where = append(b.where, ors[0])
	} else {
		b.where = append(b.where, "("+strings.Join(ors, " OR ")+")")
	}
	return nil
}

// buildSelect renders q against t.
func buildSelect(d Dialect, t *relation.EntityType, q store.Query) (string, []any, error) {
	b := &selectBuilder{dialect: d, typ: t}
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		qc, err := d.quote(c.Name)
		if err != nil {
			return "", nil, err
		}
		cols[i] = qc
	}
	table, err := d.quote(t.Table)
	if err != nil {
		return "", nil, err
	}
	for _, p := range q.Where {
		if err := b.predicate(p); err != nil {
			return "", nil, fmt.Errorf("%s: %w", t.Name, err)
		}
	}
	pk, err := d.quote(t.PrimaryKey)
	if err != nil {
		return "", nil, err
	}
	order := make([]string, 0, len(b.ranks)+1)
	for _, rank := range b.ranks {
		order = append(order, rank())
	}
	order = append(order, pk+" ASC")

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(table)
	if len(b.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.where, " AND "))
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(strings.Join(order, ", "))
	sb.WriteString(d.pagination(q.Limit, q.Offset))
	return sb.String(), b.args, nil
}
