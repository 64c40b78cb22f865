package main

import (
	"flag"
	"fmt"
	"os"
)

const usage = `lsmdb is an embeddable LSM key/value store.

Usage:
  lsmdb serve [flags]   run the admin HTTP/GraphQL/WebSocket server
  lsmdb repl [flags]    open an interactive REPL against a local store

Run 'lsmdb <command> -h' for flags specific to that command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "serve":
		runServe(args)
	case "repl":
		runRepl(args)
	case "-h", "--help", "help":
		fmt.Fprint(os.Stderr, usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n%s", cmd, usage)
		os.Exit(1)
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	host := fs.String("host", "localhost", "server host address")
	port := fs.Int("port", 8080, "server port")
	dataDir := fs.String("data-dir", "./data", "data directory for store files")
	flushThreshold := fs.Int64("flush-threshold", 64*1024*1024, "memtable flush threshold in bytes")
	compressionName := fs.String("compression", "none", "value compression: none, snappy, or zstd")
	encryptionKeyFile := fs.String("encryption-key-file", "", "path to a passphrase file enabling AES-256-CTR encryption at rest")
	enableGraphQL := fs.Bool("graphql", true, "enable the /graphql and /graphiql endpoints")
	fs.Parse(args)

	cfg, err := buildEngineConfig(*dataDir, *flushThreshold, *compressionName, *encryptionKeyFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build engine config: %v\n", err)
		os.Exit(1)
	}

	eng, err := openEngine(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open engine: %v\n", err)
		os.Exit(1)
	}

	srvConfig := defaultAdminConfig()
	srvConfig.Host = *host
	srvConfig.Port = *port
	srvConfig.EnableGraphQL = *enableGraphQL

	srv, err := newAdminServer(srvConfig, eng)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create server: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func runRepl(args []string) {
	fs := flag.NewFlagSet("repl", flag.ExitOnError)
	dataDir := fs.String("data-dir", "./data", "data directory for store files")
	flushThreshold := fs.Int64("flush-threshold", 64*1024*1024, "memtable flush threshold in bytes")
	compressionName := fs.String("compression", "none", "value compression: none, snappy, or zstd")
	encryptionKeyFile := fs.String("encryption-key-file", "", "path to a passphrase file enabling AES-256-CTR encryption at rest")
	fs.Parse(args)

	cfg, err := buildEngineConfig(*dataDir, *flushThreshold, *compressionName, *encryptionKeyFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build engine config: %v\n", err)
		os.Exit(1)
	}

	eng, err := openEngine(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open engine: %v\n", err)
		os.Exit(1)
	}

	repl, err := newREPL(eng)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start repl: %v\n", err)
		os.Exit(1)
	}
	defer repl.Close()

	if err := repl.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "repl error: %v\n", err)
		os.Exit(1)
	}
}
