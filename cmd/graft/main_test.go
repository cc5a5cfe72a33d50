package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"

	"github.com/hanpama/graft/internal/relation"
	"github.com/hanpama/graft/internal/store"
)

const registry = `
entities:
  - name: Account
    columns:
      - {name: id, type: int}
      - {name: tenant_id, type: int}
      - {name: name, type: string, searchable: true}
    edges:
      - {name: notes, kind: toMany, target: Note}
  - name: Note
    columns:
      - {name: id, type: int}
      - {name: account_id, type: int}
      - {name: body, type: string}
    edges:
      - {name: account, kind: toOne, target: Account}
`

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestHelp(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"help", "serve"}, &out, &bytes.Buffer{}))
	assert.Contains(t, out.String(), "serve FLAGS")

	out.Reset()
	require.NoError(t, run([]string{"help"}, &out, &bytes.Buffer{}))
	assert.Contains(t, out.String(), "print-schema")

	assert.Error(t, run([]string{"help", "nope"}, &out, &bytes.Buffer{}))
}

func TestUnknownCommand(t *testing.T) {
	var stderr bytes.Buffer
	err := run([]string{"frobnicate"}, &bytes.Buffer{}, &stderr)
	require.Error(t, err)
	assert.Contains(t, stderr.String(), "USAGE")

	assert.EqualError(t, run(nil, &bytes.Buffer{}, &bytes.Buffer{}), "missing command")
}

func TestPrintSchema(t *testing.T) {
	path := writeRegistry(t, registry)
	var out bytes.Buffer
	require.NoError(t, run([]string{"print-schema", "-registry.file", path}, &out, &bytes.Buffer{}))
	sdl := out.String()
	assert.Contains(t, sdl, "type Account {")
	assert.Contains(t, sdl, "notes(limit: Int = 10, offset: Int = 0): [Note!]!")
	assert.Contains(t, sdl, "accounts(ids: [ID!], limit: Int = 10, offset: Int = 0, query: AccountQuery): [Account!]!")

	outFile := filepath.Join(t.TempDir(), "schema.graphql")
	require.NoError(t, run([]string{"print-schema", "-registry.file", path, "-out", outFile}, &bytes.Buffer{}, &bytes.Buffer{}))
	written, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Equal(t, sdl, string(written))
}

func TestPrintSchemaRequiresRegistry(t *testing.T) {
	var stderr bytes.Buffer
	err := run([]string{"print-schema"}, &bytes.Buffer{}, &stderr)
	assert.EqualError(t, err, "-registry.file is required")
	assert.Contains(t, stderr.String(), "print-schema FLAGS")
}

func TestCheck(t *testing.T) {
	var out bytes.Buffer
	path := writeRegistry(t, registry)
	require.NoError(t, run([]string{"check", "-registry.file", path}, &out, &bytes.Buffer{}))
	assert.Contains(t, out.String(), "ok (2 entity types, 2 edges)")

	bad := writeRegistry(t, `
entities:
  - name: Account
    columns:
      - {name: id, type: float}
    edges:
      - {name: owner, kind: toOne, target: Nobody}
`)
	out.Reset()
	err := run([]string{"check", "-registry.file", bad}, &out, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "problem(s)")
	assert.Contains(t, out.String(), "Account")
}

func TestParseServe(t *testing.T) {
	c, err := parseServe([]string{"-registry.file", "r.yaml", "-server.forward-header", "X-A", "-server.forward-header", "X-B"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", c.store.driver)
	assert.Equal(t, 4, c.concurrency)
	assert.Equal(t, ":8080", c.addr)
	assert.Equal(t, 10*time.Second, c.timeout)
	assert.Equal(t, stringListFlag{"X-A", "X-B"}, c.forward)
	assert.True(t, c.playground)
	assert.True(t, c.introspect)

	c, err = parseServe([]string{"-registry.file", "r.yaml", "-server.introspection=false"})
	require.NoError(t, err)
	assert.False(t, c.introspect)

	_, err = parseServe(nil)
	assert.EqualError(t, err, "-registry.file is required")

	_, err = parseServe([]string{"-registry.file", "r.yaml", "-scope.header", "X-Tenant"})
	assert.Error(t, err)
}

func TestServeRejectsBadConfig(t *testing.T) {
	path := writeRegistry(t, registry)
	assert.Error(t, run([]string{"serve", "-registry.file", path, "-log.level", "loud"}, &bytes.Buffer{}, &bytes.Buffer{}))
	assert.Error(t, run([]string{"serve", "-registry.file", path, "-search.mode", "fuzzy"}, &bytes.Buffer{}, &bytes.Buffer{}))
	assert.Error(t, run([]string{"serve", "-registry.file", path}, &bytes.Buffer{}, &bytes.Buffer{}), "missing dsn")
}

func TestOpenStore(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "graft.db")
	repo, closeStore, err := openStore(context.Background(), storeConfig{driver: "sqlite", dsn: dsn})
	require.NoError(t, err)
	require.NotNil(t, repo)
	assert.NoError(t, closeStore())

	_, _, err = openStore(context.Background(), storeConfig{driver: "oracle", dsn: "x"})
	assert.Error(t, err)
}

func TestHeaderScope(t *testing.T) {
	reg, err := relation.Parse([]byte(registry))
	require.NoError(t, err)
	scope := headerScope("X-Tenant", "tenant_id")

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-tenant", "7"))
	var q store.Query
	require.NoError(t, scope(ctx, reg.MustType("Account"), &q))
	assert.Equal(t, []store.Predicate{store.Eq{Column: "tenant_id", Value: int64(7)}}, q.Where)

	var unscoped store.Query
	require.NoError(t, scope(ctx, reg.MustType("Note"), &unscoped))
	assert.Empty(t, unscoped.Where)

	assert.EqualError(t, scope(context.Background(), reg.MustType("Account"), &q), "missing X-Tenant header")

	bad := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-tenant", "acme"))
	assert.Error(t, scope(bad, reg.MustType("Account"), &q))
}
