// Package main is the entrypoint for the a2a-inspector service and CLI.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hybroai/a2a-agent-inspector/internal/config"
	"github.com/hybroai/a2a-agent-inspector/internal/inspector"
	"github.com/hybroai/a2a-agent-inspector/internal/server"
	"github.com/hybroai/a2a-agent-inspector/internal/telemetry"
)

// Version is set at build time via -ldflags.
var Version = "dev"

const defaultConfigPath = "inspector.yaml"

// startable is satisfied by *server.Server.
type startable interface {
	Start(ctx context.Context) error
}

// serverFactory creates a startable server from config. Tests can inject a
// failing factory to cover the server.New() error path.
type serverFactory func(ctx context.Context, cfg *config.Config, configPath string) (startable, error)

// defaultServerFactory is the production factory that delegates to server.New.
func defaultServerFactory(ctx context.Context, cfg *config.Config, configPath string) (startable, error) {
	return server.New(ctx, cfg, Version, server.WithConfigPath(configPath))
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// cli carries the parsed global flags and output streams.
type cli struct {
	configPath     string
	configExplicit bool
	stdout         io.Writer
	stderr         io.Writer
}

func run(args []string, stdout, stderr io.Writer) int {
	// Global flags
	fs := flag.NewFlagSet("inspector", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			printUsage(stderr)
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *showVersion {
		fmt.Fprintf(stdout, "a2a-inspector %s\n", Version)
		return 0
	}

	c := &cli{configPath: *configPath, stdout: stdout, stderr: stderr}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			c.configExplicit = true
		}
	})

	// Determine subcommand
	subcmd := "serve"
	remaining := fs.Args()
	if len(remaining) > 0 {
		subcmd = remaining[0]
		remaining = remaining[1:]
	}

	switch subcmd {
	case "serve":
		return c.cmdServe(defaultServerFactory)
	case "validate":
		return c.cmdValidate()
	case "inspect":
		return c.cmdInspect(remaining)
	case "send":
		return c.cmdSend(remaining)
	case "init":
		return c.cmdInit(remaining)
	case "help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", subcmd)
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `a2a-inspector %s - A2A agent compliance inspector

Usage:
  inspector [flags] <command>

Commands:
  serve                  Start the inspector HTTP API (default)
  validate               Validate configuration file
  inspect <url>          Load and validate the agent card at <url>
  send <url> <message>   Send one message to the agent at <url>
  init                   Generate a new inspector.yaml
  help                   Show this help message

Flags:
  --config string   Path to configuration file (default "inspector.yaml")
  --version         Print version and exit

Examples:
  inspector serve --config inspector.yaml
  inspector inspect https://agent.example.com
  inspector send https://agent.example.com "hello"
  inspector init --profile prod
`, Version)
}

// loadConfig reads the config file. A missing default file means defaults;
// a missing explicit file is an error.
func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		if !c.configExplicit && errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// cmdServe starts the inspector HTTP server with graceful shutdown.
func (c *cli) cmdServe(newServer serverFactory) int {
	cfg, err := c.loadConfig()
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}

	logger, _ := server.BuildLogger(cfg.Logging, c.stderr)
	slog.SetDefault(logger)
	logger.Info("starting a2a-inspector", "version", Version, "config", c.configPath)

	// Graceful shutdown on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing, Version, c.stdout)
	if err != nil {
		logger.Error("tracing initialization error", "error", err)
		return 1
	}
	defer shutdownTracing(context.Background())

	configPath := c.configPath
	if _, statErr := os.Stat(configPath); statErr != nil {
		configPath = "" // running on defaults, nothing to watch
	}

	srv, err := newServer(ctx, cfg, configPath)
	if err != nil {
		logger.Error("server initialization error", "error", err)
		return 1
	}

	if err := srv.Start(ctx); err != nil {
		logger.Error("server error", "error", err)
		return 1
	}
	return 0
}

// cmdValidate loads and validates the configuration file.
func (c *cli) cmdValidate() int {
	if _, err := config.Load(c.configPath); err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(c.stdout, "config valid")
	return 0
}

// cmdInspect loads and validates one agent card and prints the envelope.
func (c *cli) cmdInspect(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(c.stderr, "Usage: inspector inspect <url>")
		return 1
	}
	return c.oneShot(func(ctx context.Context, svc *inspector.Service) inspector.Envelope {
		return svc.InspectCard(ctx, args[0])
	})
}

// cmdSend relays one message and prints the envelope.
func (c *cli) cmdSend(args []string) int {
	if len(args) != 2 || args[1] == "" {
		fmt.Fprintln(c.stderr, "Usage: inspector send <url> <message>")
		return 1
	}
	return c.oneShot(func(ctx context.Context, svc *inspector.Service) inspector.Envelope {
		return svc.SendMessage(ctx, args[0], args[1])
	})
}

// oneShot wires a service from config, runs op once and prints the result
// as JSON. The exit code is 0 only when the envelope reports success.
func (c *cli) oneShot(op func(context.Context, *inspector.Service) inspector.Envelope) int {
	cfg, err := c.loadConfig()
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	logger, _ := server.BuildLogger(cfg.Logging, c.stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	built, err := server.BuildInspector(ctx, cfg, server.Dependencies{Logger: logger})
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	if err := built.Verifier.Start(ctx); err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}

	env := op(ctx, built.Service)

	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(env); err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	if !env.Success {
		return 1
	}
	return 0
}

// cmdInit generates a new inspector.yaml with the specified profile.
func (c *cli) cmdInit(args []string) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	profile := fs.String("profile", "dev", "configuration profile (dev or prod)")
	output := fs.String("output", defaultConfigPath, "file to write")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}

	var profileYAML string
	switch *profile {
	case "dev":
		profileYAML = config.DevProfile()
	case "prod":
		profileYAML = config.ProdProfile()
	default:
		fmt.Fprintf(c.stderr, "Error: unknown profile %q (use dev or prod)\n", *profile)
		return 1
	}

	if err := os.WriteFile(*output, []byte(profileYAML), 0644); err != nil {
		fmt.Fprintf(c.stderr, "Error writing %s: %v\n", *output, err)
		return 1
	}

	fmt.Fprintf(c.stdout, "Generated %s with profile %q\n", *output, *profile)
	return 0
}
