package main

import (
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/croaky/shipproxy"
)

// CommandLineArguments configures the offshore process. Defaults come from
// SHIPPROXY_* environment variables (optionally loaded from .env).
type CommandLineArguments struct {
	Port           int
	Transport      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Debug          bool
}

// ListenAddress is the address ship tunnels connect to.
func (args *CommandLineArguments) ListenAddress() string {
	return ":" + strconv.Itoa(args.Port)
}

// Validate reports the first invalid argument.
func (args *CommandLineArguments) Validate() error {
	if args.Port < 0 || args.Port > 65535 {
		return fmt.Errorf("invalid --port %d", args.Port)
	}
	if args.Transport != shipproxy.TransportTCP && args.Transport != shipproxy.TransportWebSocket {
		return fmt.Errorf("invalid --transport %q (want %s or %s)", args.Transport, shipproxy.TransportTCP, shipproxy.TransportWebSocket)
	}
	if args.ConnectTimeout <= 0 || args.ReadTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

// ParseCommandLineArguments parses argv (without the program name).
func ParseCommandLineArguments(argv []string) (*CommandLineArguments, error) {
	cliArgs := CommandLineArguments{}

	fs := flag.NewFlagSet("offshore", flag.ContinueOnError)
	fs.IntVar(&cliArgs.Port, "port", shipproxy.EnvInt("SHIPPROXY_PORT", 9090), "port ship tunnels connect to")
	fs.StringVar(&cliArgs.Transport, "transport", shipproxy.EnvString("SHIPPROXY_TRANSPORT", shipproxy.TransportTCP), "tunnel transport: tcp or ws")
	fs.DurationVar(&cliArgs.ConnectTimeout, "connect-timeout", shipproxy.EnvDuration("SHIPPROXY_CONNECT_TIMEOUT", shipproxy.ConnectTimeout), "origin connect timeout")
	fs.DurationVar(&cliArgs.ReadTimeout, "read-timeout", shipproxy.EnvDuration("SHIPPROXY_READ_TIMEOUT", shipproxy.ReadTimeout), "origin read timeout")
	fs.BoolVar(&cliArgs.Debug, "debug", shipproxy.EnvBool("SHIPPROXY_DEBUG"), "verbose logging")
	if err := fs.Parse(argv); err != nil {
		return nil, err
	}
	if err := cliArgs.Validate(); err != nil {
		return nil, err
	}
	return &cliArgs, nil
}
