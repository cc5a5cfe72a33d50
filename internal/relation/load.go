package relation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type fileDoc struct {
	Entities []entityDoc `yaml:"entities"`
}

type entityDoc struct {
	Name       string      `yaml:"name"`
	Table      string      `yaml:"table"`
	PrimaryKey string      `yaml:"primaryKey"`
	Plural     string      `yaml:"plural"`
	All        *bool       `yaml:"all"`
	Columns    []columnDoc `yaml:"columns"`
	Edges      []edgeDoc   `yaml:"edges"`
}

type columnDoc struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Nullable   bool   `yaml:"nullable"`
	Searchable bool   `yaml:"searchable"`
}

type edgeDoc struct {
	Name         string `yaml:"name"`
	Kind         string `yaml:"kind"`
	Target       string `yaml:"target"`
	Column       string `yaml:"column"`
	Paginated    *bool  `yaml:"paginated"`
	DefaultLimit int    `yaml:"defaultLimit"`
}

// LoadFile reads and validates a YAML descriptor file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML descriptor document.
//
// Entities default to allowing unfiltered root list queries and ToMany edges
// default to being paginated. Unknown keys are rejected.
func Parse(data []byte) (*Registry, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc fileDoc
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse registry: %w", err)
	}

	v := &validator{}
	types := make([]*EntityType, 0, len(doc.Entities))
	for _, ed := range doc.Entities {
		t := &EntityType{
			Name:       ed.Name,
			Table:      ed.Table,
			PrimaryKey: ed.PrimaryKey,
			Plural:     ed.Plural,
			AllowAll:   ed.All == nil || *ed.All,
		}
		for _, cd := range ed.Columns {
			t.Columns = append(t.Columns, &Column{
				Name:       cd.Name,
				Type:       ColumnType(cd.Type),
				Nullable:   cd.Nullable,
				Searchable: cd.Searchable,
			})
		}
		for _, gd := range ed.Edges {
			kind, err := parseKind(gd.Kind)
			if err != nil {
				v.addf("%s.%s: %v", ed.Name, gd.Name, err)
				continue
			}
			e := &Edge{
				Name:         gd.Name,
				Kind:         kind,
				Target:       gd.Target,
				Column:       gd.Column,
				DefaultLimit: gd.DefaultLimit,
			}
			if kind == ToMany {
				e.Paginated = gd.Paginated == nil || *gd.Paginated
			} else if gd.Paginated != nil {
				e.Paginated = *gd.Paginated
			}
			t.Edges = append(t.Edges, e)
		}
		types = append(types, t)
	}
	if err := v.err(); err != nil {
		return nil, err
	}
	return New(types...)
}
