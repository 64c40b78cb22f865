package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mnohosten/lsmdb/pkg/engine"
)

const (
	version = "0.1.0"
	banner  = `
lsmdb REPL v%s
an embeddable LSM key/value store

Type 'help' for available commands
Type 'exit' or 'quit' to leave

`
)

// repl is an interactive command loop over an open Engine.
type repl struct {
	eng     *engine.Engine
	scanner *bufio.Scanner
}

func newREPL(eng *engine.Engine) (*repl, error) {
	return &repl{
		eng:     eng,
		scanner: bufio.NewScanner(os.Stdin),
	}, nil
}

func (r *repl) Close() error {
	return r.eng.Close()
}

func (r *repl) Run() error {
	fmt.Printf(banner, version)

	for {
		fmt.Print("lsmdb> ")
		if !r.scanner.Scan() {
			break
		}

		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}

		if err := r.execute(line); err != nil {
			if err.Error() == "exit" {
				fmt.Println("Goodbye!")
				return nil
			}
			fmt.Printf("Error: %v\n", err)
		}
	}

	return r.scanner.Err()
}

func (r *repl) execute(line string) error {
	parts := strings.Fields(line)
	cmd := strings.ToLower(parts[0])

	switch cmd {
	case "help", "?":
		return r.showHelp()
	case "exit", "quit":
		return fmt.Errorf("exit")
	case "get":
		return r.get(parts)
	case "put", "set":
		return r.put(parts, line)
	case "del", "delete", "remove":
		return r.del(parts)
	case "stats":
		return r.stats()
	case "flush":
		return r.flush()
	case "clear":
		fmt.Print("\033[H\033[2J")
		return nil
	case "version":
		fmt.Printf("lsmdb version %s\n", version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", cmd)
	}
}

func (r *repl) showHelp() error {
	help := `
lsmdb REPL commands:

  help, ?                  Show this help message
  exit, quit               Exit the REPL
  clear                    Clear the screen
  version                  Show REPL version

  get <key>                Look up a key
  put <key> <value>        Store a key/value pair (value is the rest of the line)
  del <key>                Remove a key
  stats                    Show memtable and SSTable counters
  flush                    Force a memtable flush to a new SSTable

Examples:
  put user:1 alice
  get user:1
  del user:1
`
	fmt.Println(help)
	return nil
}

func (r *repl) get(parts []string) error {
	if len(parts) < 2 {
		return fmt.Errorf("usage: get <key>")
	}
	val, ok, err := r.eng.Get([]byte(parts[1]))
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("(not found)")
		return nil
	}
	fmt.Println(string(val))
	return nil
}

func (r *repl) put(parts []string, line string) error {
	if len(parts) < 3 {
		return fmt.Errorf("usage: put <key> <value>")
	}
	value := strings.TrimSpace(strings.TrimPrefix(line, parts[0]))
	value = strings.TrimSpace(strings.TrimPrefix(value, parts[1]))
	return r.eng.Put([]byte(parts[1]), []byte(value))
}

func (r *repl) del(parts []string) error {
	if len(parts) < 2 {
		return fmt.Errorf("usage: del <key>")
	}
	return r.eng.Remove([]byte(parts[1]))
}

func (r *repl) stats() error {
	s := r.eng.Stats()
	fmt.Println("MemTable entries: " + strconv.Itoa(s.MemTableEntries))
	fmt.Println("MemTable bytes:   " + strconv.FormatInt(s.MemTableBytes, 10))
	fmt.Println("SSTables:         " + strconv.Itoa(s.NumSSTables))
	return nil
}

func (r *repl) flush() error {
	if err := r.eng.Flush(); err != nil {
		return err
	}
	fmt.Println("flushed")
	return nil
}
