package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hanpama/graft/internal/eventbus"
	"github.com/hanpama/graft/internal/executor"
	"github.com/hanpama/graft/internal/introspection"
	"github.com/hanpama/graft/internal/logging"
	"github.com/hanpama/graft/internal/otel"
	"github.com/hanpama/graft/internal/relation"
	"github.com/hanpama/graft/internal/resolve"
	"github.com/hanpama/graft/internal/schema"
	"github.com/hanpama/graft/internal/server"
	"github.com/hanpama/graft/internal/store"
)

const rootUsage = `graft: GraphQL over relational stores with relationship preloading

USAGE:
  graft <command> [flags]

COMMANDS:
  serve            Run the HTTP GraphQL server for a relationship registry
  print-schema     Print the GraphQL schema generated for a registry
  check            Validate a registry file and report every problem
  help             Show help for any command
`

const serveUsage = `serve FLAGS:
  -registry.file <file>               Relationship registry YAML (required)
  -store.driver <name>                sqlite, mysql, postgres, gorm-mysql, gorm-postgres
                                      or neo4j (default: sqlite)
  -store.dsn <dsn>                    Data source name, or bolt/neo4j URI for neo4j
  -store.user <name>                  neo4j user
  -store.password <secret>            neo4j password
  -store.database <name>              neo4j database (default: server default)
  -preload.concurrency N              Sibling batch fetches run at once (default: 4)
  -search.mode <mode>                 Root list search: contains or prefix (default: contains)
  -scope.header <name>                Forwarded header scoping root fetches, e.g. X-Tenant
  -scope.column <name>                Column the scope header value must equal
  -server.addr <addr>                 HTTP listen address (default: :8080)
  -server.pretty                      Pretty-print JSON responses
  -server.timeout <duration>          Per-request timeout, e.g. 10s (default: 10s)
  -server.max-body <bytes>            Request body limit, 0 for none (default: 1048576)
  -server.forward-header <name>       Forward HTTP header to resolvers. Repeatable
  -server.cors-origin <origin>        Allowed CORS origin. Repeatable
  -server.playground <bool>           Serve the GraphQL playground (default: true)
  -server.introspection <bool>        Answer __schema and __type queries (default: true)
  -log.level <level>                  debug, info, warn or error (default: info)
  -log.format <format>                text or json (default: text)
  -otel.endpoint <addr>               OTLP collector endpoint
  -otel.service <name>                OpenTelemetry service name (default: graft)
`

const printSchemaUsage = `print-schema FLAGS:
  -registry.file <file>    Relationship registry YAML (required)
  -out <file>              Write SDL to file (default: stdout)
`

const checkUsage = `check FLAGS:
  -registry.file <file>    Relationship registry YAML (required)
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("graft", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs, stderr)
	case "print-schema":
		return cmdPrintSchema(cmdArgs, stdout, stderr)
	case "check":
		return cmdCheck(cmdArgs, stdout, stderr)
	case "help":
		return cmdHelp(cmdArgs, stdout)
	default:
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Fprint(stdout, serveUsage)
	case "print-schema":
		fmt.Fprint(stdout, printSchemaUsage)
	case "check":
		fmt.Fprint(stdout, checkUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return "" }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type serveConfig struct {
	registryFile string
	store        storeConfig
	concurrency  int
	searchMode   string
	scopeHeader  string
	scopeColumn  string
	addr         string
	pretty       bool
	timeout      time.Duration
	maxBody      int64
	forward      stringListFlag
	cors         stringListFlag
	playground   bool
	introspect   bool
	log          logging.Config
	otelEndpoint string
	otelService  string
}

func parseServe(args []string) (serveConfig, error) {
	c := serveConfig{
		store:       storeConfig{driver: "sqlite"},
		concurrency: 4,
		searchMode:  string(store.Contains),
		addr:        ":8080",
		timeout:     10 * time.Second,
		maxBody:     1 << 20,
		playground:  true,
		introspect:  true,
		otelService: "graft",
	}
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&c.registryFile, "registry.file", c.registryFile, "Relationship registry YAML")
	fs.StringVar(&c.store.driver, "store.driver", c.store.driver, "Store driver")
	fs.StringVar(&c.store.dsn, "store.dsn", c.store.dsn, "Data source name")
	fs.StringVar(&c.store.user, "store.user", c.store.user, "neo4j user")
	fs.StringVar(&c.store.password, "store.password", c.store.password, "neo4j password")
	fs.StringVar(&c.store.database, "store.database", c.store.database, "neo4j database")
	fs.IntVar(&c.concurrency, "preload.concurrency", c.concurrency, "Sibling batch fetches run at once")
	fs.StringVar(&c.searchMode, "search.mode", c.searchMode, "Root list search mode")
	fs.StringVar(&c.scopeHeader, "scope.header", c.scopeHeader, "Forwarded header scoping root fetches")
	fs.StringVar(&c.scopeColumn, "scope.column", c.scopeColumn, "Column the scope header must equal")
	fs.StringVar(&c.addr, "server.addr", c.addr, "HTTP listen address")
	fs.BoolVar(&c.pretty, "server.pretty", c.pretty, "Pretty-print JSON responses")
	fs.DurationVar(&c.timeout, "server.timeout", c.timeout, "Per-request timeout")
	fs.Int64Var(&c.maxBody, "server.max-body", c.maxBody, "Request body limit")
	fs.Var(&c.forward, "server.forward-header", "Forward HTTP header to resolvers")
	fs.Var(&c.cors, "server.cors-origin", "Allowed CORS origin")
	fs.BoolVar(&c.playground, "server.playground", c.playground, "Serve the GraphQL playground")
	fs.BoolVar(&c.introspect, "server.introspection", c.introspect, "Answer introspection queries")
	fs.StringVar(&c.log.Level, "log.level", "info", "Log level")
	fs.StringVar(&c.log.Format, "log.format", "text", "Log format")
	fs.StringVar(&c.otelEndpoint, "otel.endpoint", c.otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&c.otelService, "otel.service", c.otelService, "OpenTelemetry service name")
	if err := fs.Parse(args); err != nil {
		return c, err
	}
	if c.registryFile == "" {
		return c, fmt.Errorf("-registry.file is required")
	}
	if (c.scopeHeader == "") != (c.scopeColumn == "") {
		return c, fmt.Errorf("-scope.header and -scope.column must be set together")
	}
	return c, nil
}

func cmdServe(args []string, stderr io.Writer) error {
	c, err := parseServe(args)
	if err != nil {
		fmt.Fprint(stderr, serveUsage)
		return err
	}
	logger, err := logging.New(stderr, c.log)
	if err != nil {
		return err
	}
	mode, err := store.ParseSearchMode(c.searchMode)
	if err != nil {
		return err
	}

	reg, err := relation.LoadFile(c.registryFile)
	if err != nil {
		return err
	}
	sch, err := schema.BuildFromRegistry(reg)
	if err != nil {
		return fmt.Errorf("build schema: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeStore, err := openStore(ctx, c.store)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("close store", "err", err)
		}
	}()

	eventbus.Use(eventbus.New())
	defer logging.Subscribe(logger)()
	shutdown, err := otel.Setup(c.otelEndpoint, c.otelService)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	opts := []resolve.Option{resolve.WithConcurrency(c.concurrency), resolve.WithSearchMode(mode)}
	forward := c.forward
	if c.scopeHeader != "" {
		opts = append(opts, resolve.WithScope(headerScope(c.scopeHeader, c.scopeColumn)))
		forward = append(forward, c.scopeHeader)
	}
	engine := resolve.NewEngine(repo, opts...)
	var runtime executor.Runtime = resolve.NewRuntime(engine, reg)
	if c.introspect {
		w := introspection.Wrap(runtime, sch)
		runtime, sch = w.Runtime, w.Schema
	}

	sopts := []server.Option{server.WithMaxBodyBytes(c.maxBody), server.WithPlayground(c.playground)}
	if c.pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if c.timeout > 0 {
		sopts = append(sopts, server.WithTimeout(c.timeout))
	}
	if len(forward) > 0 {
		sopts = append(sopts, server.WithForwardHeaders(forward...))
	}
	if len(c.cors) > 0 {
		sopts = append(sopts, server.WithCORS(c.cors...))
	}
	h, err := server.New(runtime, sch, sopts...)
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/graphql", h)
	mux.Handle("/", http.RedirectHandler("/graphql", http.StatusFound))
	srv := &http.Server{Addr: c.addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("GraphQL server listening", "addr", c.addr, "store", c.store.driver, "types", len(reg.Types()))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("GraphQL server stopped")
	return nil
}

func cmdPrintSchema(args []string, stdout, stderr io.Writer) error {
	registryFile := ""
	outFile := ""
	fs := flag.NewFlagSet("print-schema", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&registryFile, "registry.file", registryFile, "Relationship registry YAML")
	fs.StringVar(&outFile, "out", outFile, "Write SDL to file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, printSchemaUsage)
		return err
	}
	if registryFile == "" {
		fmt.Fprint(stderr, printSchemaUsage)
		return fmt.Errorf("-registry.file is required")
	}

	reg, err := relation.LoadFile(registryFile)
	if err != nil {
		return err
	}
	sch, err := schema.BuildFromRegistry(reg)
	if err != nil {
		return fmt.Errorf("build schema: %w", err)
	}
	sdl := schema.Render(sch)
	if outFile == "" {
		fmt.Fprint(stdout, sdl)
		return nil
	}
	return os.WriteFile(outFile, []byte(sdl), 0o644)
}

func cmdCheck(args []string, stdout, stderr io.Writer) error {
	registryFile := ""
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&registryFile, "registry.file", registryFile, "Relationship registry YAML")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, checkUsage)
		return err
	}
	if registryFile == "" {
		fmt.Fprint(stderr, checkUsage)
		return fmt.Errorf("-registry.file is required")
	}

	reg, err := relation.LoadFile(registryFile)
	var verr *relation.ValidationError
	if errors.As(err, &verr) {
		for _, p := range verr.Problems {
			fmt.Fprintln(stdout, p)
		}
		return fmt.Errorf("%s: %d problem(s)", registryFile, len(verr.Problems))
	}
	if err != nil {
		return err
	}
	if _, err := schema.BuildFromRegistry(reg); err != nil {
		return fmt.Errorf("build schema: %w", err)
	}
	edges := 0
	for _, t := range reg.Types() {
		edges += len(t.Edges)
	}
	fmt.Fprintf(stdout, "%s: ok (%d entity types, %d edges)\n", registryFile, len(reg.Types()), edges)
	return nil
}
