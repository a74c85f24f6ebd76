package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hanpama/federate/internal/eventbus"
	"github.com/hanpama/federate/internal/executor"
	"github.com/hanpama/federate/internal/logging"
	"github.com/hanpama/federate/internal/metrics"
	"github.com/hanpama/federate/internal/otel"
	"github.com/hanpama/federate/internal/plan"
	"github.com/hanpama/federate/internal/protoreg"
	"github.com/hanpama/federate/internal/services"
)

const rootUsage = `federate - query plan executor for federated GraphQL

USAGE:
  federate <command> [flags]

COMMANDS:
  run       Execute a query plan against subgraph services
  validate  Check a query plan and the operations it carries
  proto     Print or write the gRPC Subgraph contract
  help      Show help for any command
`

const runUsage = `run FLAGS:
  -plan <file>                 Query plan, JSON or YAML (required)
  -variables <json|@file>      Operation variables as a JSON object
  -config <file>               Services config (YAML)
  -service <name=url>          Add or override a service. Repeatable. URL scheme
                               selects the transport: grpc://host:port, http(s)://...
  -dedup <bool>                Override the plan's representation deduplication
  -timeout <duration>          Execution timeout, e.g. 10s (default: 30s)
  -pretty                      Pretty-print the JSON response
  -log.level <level>           trace, debug, info, warn, error, off (default: info)
  -log.format <format>         auto, json, console (default: auto)
  -metrics.addr <addr>         Serve Prometheus metrics on addr while running
  -otel.endpoint <addr>        OTLP collector endpoint
  -otel.service <name>         OpenTelemetry service name (default: federate)
`

const validateUsage = `validate FLAGS:
  -plan <file>  Query plan, JSON or YAML (required)
  (Exits non-zero when violations are found)
`

const protoUsage = `proto FLAGS:
  -package <name>  Proto package of the contract (default: federate.v1)
  -out <dir>       Write .proto files under dir (default: stdout)
`

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(stderr, "federate:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("federate", flag.ContinueOnError)
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
	case "run":
		return cmdRun(cmdArgs)
	case "validate":
		return cmdValidate(cmdArgs)
	case "proto":
		return cmdProto(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "run":
		fmt.Fprint(stdout, runUsage)
	case "validate":
		fmt.Fprint(stdout, validateUsage)
	case "proto":
		fmt.Fprint(stdout, protoUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type serviceFlag struct {
	names []string
	urls  []string
}

func (s *serviceFlag) String() string { return "" }

func (s *serviceFlag) Set(v string) error {
	name, url, err := services.ParseServiceFlag(v)
	if err != nil {
		return err
	}
	s.names = append(s.names, name)
	s.urls = append(s.urls, url)
	return nil
}

func cmdRun(args []string) error {
	planFile := ""
	variables := ""
	configFile := ""
	timeout := 30 * time.Second
	pretty := false
	logLevel := "info"
	logFormat := "auto"
	metricsAddr := ""
	otelEndpoint := ""
	otelService := "federate"
	var dedup *bool
	var sf serviceFlag

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&planFile, "plan", planFile, "Query plan file")
	fs.StringVar(&variables, "variables", variables, "Operation variables")
	fs.StringVar(&configFile, "config", configFile, "Services config")
	fs.Var(&sf, "service", "Add or override a service")
	fs.Func("dedup", "Override representation deduplication", func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		dedup = &b
		return nil
	})
	fs.DurationVar(&timeout, "timeout", timeout, "Execution timeout")
	fs.BoolVar(&pretty, "pretty", pretty, "Pretty-print the JSON response")
	fs.StringVar(&logLevel, "log.level", logLevel, "Log level")
	fs.StringVar(&logFormat, "log.format", logFormat, "Log format")
	fs.StringVar(&metricsAddr, "metrics.addr", metricsAddr, "Prometheus metrics address")
	fs.StringVar(&otelEndpoint, "otel.endpoint", otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", otelService, "OpenTelemetry service name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, runUsage)
		return err
	}
	if planFile == "" {
		fmt.Fprint(stderr, runUsage)
		return fmt.Errorf("-plan is required")
	}
	if err := logging.Configure(stderr, logLevel, logFormat); err != nil {
		return err
	}

	qp, err := plan.Load(planFile)
	if err != nil {
		return err
	}
	if qp.Root != nil {
		if err := plan.Validate(qp); err != nil {
			return err
		}
	}
	vars, err := parseVariables(variables)
	if err != nil {
		return err
	}

	cfg := &services.Config{}
	if configFile != "" {
		if cfg, err = services.LoadConfig(configFile); err != nil {
			return err
		}
	}
	for i, name := range sf.names {
		cfg.Set(name, sf.urls[i])
	}
	for _, name := range qp.Services() {
		if _, ok := cfg.Services[name]; !ok {
			logging.Warn().Str("service", name).Msg("plan references a service that is not configured")
		}
	}
	reg, err := services.Build(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = reg.Close() }()

	eventbus.Use(eventbus.New())
	defer eventbus.Use(nil)
	shutdown, err := otel.Setup(otelEndpoint, otelService)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if metricsAddr != "" {
		stop, err := serveMetrics(metricsAddr)
		if err != nil {
			return err
		}
		defer stop()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var opts []executor.Option
	if dedup != nil {
		opts = append(opts, executor.WithDeduplication(*dedup))
	}
	resp := executor.NewExecutor(reg, opts...).ExecutePlan(ctx, qp, vars)
	logging.Info().
		Int("fetches", qp.SubgraphFetches()).
		Int("errors", len(resp.Errors)).
		Msg("plan executed")

	enc := json.NewEncoder(stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(resp)
}

// parseVariables reads a JSON object given inline or as @file.
func parseVariables(v string) (map[string]any, error) {
	if v == "" {
		return nil, nil
	}
	data := []byte(v)
	if file, ok := strings.CutPrefix(v, "@"); ok {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("load variables: %w", err)
		}
		data = b
	}
	var vars map[string]any
	if err := json.Unmarshal(data, &vars); err != nil {
		return nil, fmt.Errorf("variables: %w", err)
	}
	return vars, nil
}

func serveMetrics(addr string) (stop func(), err error) {
	reg := prometheus.NewRegistry()
	unsubscribe := metrics.New(reg).Subscribe()

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		unsubscribe()
		return nil, fmt.Errorf("metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Err(err).Msg("metrics server stopped")
		}
	}()
	logging.Info().Str("addr", lis.Addr().String()).Msg("serving metrics")
	return func() {
		unsubscribe()
		_ = srv.Close()
	}, nil
}

func cmdValidate(args []string) error {
	planFile := ""
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&planFile, "plan", planFile, "Query plan file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, validateUsage)
		return err
	}
	if planFile == "" {
		fmt.Fprint(stderr, validateUsage)
		return fmt.Errorf("-plan is required")
	}
	qp, err := plan.Load(planFile)
	if err != nil {
		return err
	}
	if err := plan.Validate(qp); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "ok: %d fetches, services: %s\n", qp.SubgraphFetches(), strings.Join(qp.Services(), ", "))
	return nil
}

func cmdProto(args []string) error {
	pkg := protoreg.DefaultPackage
	outDir := ""
	fs := flag.NewFlagSet("proto", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&pkg, "package", pkg, "Proto package")
	fs.StringVar(&outDir, "out", outDir, "Output directory for .proto files")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, protoUsage)
		return err
	}
	reg, err := protoreg.Build(pkg)
	if err != nil {
		return fmt.Errorf("protoreg build: %w", err)
	}
	if outDir == "" {
		return protoreg.Print(reg, stdout)
	}
	if err := protoreg.Render(reg, outDir); err != nil {
		return fmt.Errorf("render proto: %w", err)
	}
	return nil
}
