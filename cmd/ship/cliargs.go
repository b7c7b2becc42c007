package main

import (
	"flag"
	"fmt"
	"net"
	"strconv"

	"github.com/croaky/shipproxy"
)

// CommandLineArguments configures the ship process. Defaults come from
// SHIPPROXY_* environment variables (optionally loaded from .env).
type CommandLineArguments struct {
	LocalPort  int
	ServerHost string
	ServerPort int
	Transport  string
	Debug      bool
}

// ServerAddress is the offshore host:port.
func (args *CommandLineArguments) ServerAddress() string {
	return net.JoinHostPort(args.ServerHost, strconv.Itoa(args.ServerPort))
}

// LocalAddress is the loopback address local clients connect to.
func (args *CommandLineArguments) LocalAddress() string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(args.LocalPort))
}

// Validate reports the first invalid argument.
func (args *CommandLineArguments) Validate() error {
	if args.LocalPort < 0 || args.LocalPort > 65535 {
		return fmt.Errorf("invalid --local-port %d", args.LocalPort)
	}
	if args.ServerPort <= 0 || args.ServerPort > 65535 {
		return fmt.Errorf("invalid --server-port %d", args.ServerPort)
	}
	if args.ServerHost == "" {
		return fmt.Errorf("--server-host is required")
	}
	if args.Transport != shipproxy.TransportTCP && args.Transport != shipproxy.TransportWebSocket {
		return fmt.Errorf("invalid --transport %q (want %s or %s)", args.Transport, shipproxy.TransportTCP, shipproxy.TransportWebSocket)
	}
	return nil
}

// ParseCommandLineArguments parses argv (without the program name).
func ParseCommandLineArguments(argv []string) (*CommandLineArguments, error) {
	cliArgs := CommandLineArguments{}

	fs := flag.NewFlagSet("ship", flag.ContinueOnError)
	fs.IntVar(&cliArgs.LocalPort, "local-port", shipproxy.EnvInt("SHIPPROXY_LOCAL_PORT", 8080), "port local HTTP clients connect to")
	fs.StringVar(&cliArgs.ServerHost, "server-host", shipproxy.EnvString("SHIPPROXY_SERVER_HOST", "localhost"), "offshore proxy host")
	fs.IntVar(&cliArgs.ServerPort, "server-port", shipproxy.EnvInt("SHIPPROXY_SERVER_PORT", 9090), "offshore proxy port")
	fs.StringVar(&cliArgs.Transport, "transport", shipproxy.EnvString("SHIPPROXY_TRANSPORT", shipproxy.TransportTCP), "tunnel transport: tcp or ws")
	fs.BoolVar(&cliArgs.Debug, "debug", shipproxy.EnvBool("SHIPPROXY_DEBUG"), "verbose logging")
	if err := fs.Parse(argv); err != nil {
		return nil, err
	}
	if err := cliArgs.Validate(); err != nil {
		return nil, err
	}
	return &cliArgs, nil
}
