package kademlia

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// CLI is a thin command layer over a running Node. It does not own the
// node's lifecycle; it only issues commands to it.
//
// Grounded on labs/kademlia/cli.go's RunLine/Run shape; the urfave/cli/v2
// app in cmd/kademlia-node wraps this REPL as one subcommand rather than
// hand-rolling flag parsing around it (SPEC_FULL.md §4.9).
type CLI struct {
	node *Node
	in   io.Reader
	out  io.Writer
}

// NewCLI constructs a CLI over the provided node.
func NewCLI(node *Node, in io.Reader, out io.Writer) *CLI {
	return &CLI{node: node, in: in, out: out}
}

// RunLine executes a single command line:
//
//	put <key> <value>   -> OK
//	get <key>            -> prints the value, or NOTFOUND
//	ping <id-hex> <addr> -> OK or FAIL
//	exit                 -> returns io.EOF
func (c *CLI) RunLine(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch strings.ToLower(fields[0]) {
	case "put":
		if len(fields) < 3 {
			fmt.Fprintln(c.out, "ERR usage: put <key> <value>")
			return nil
		}
		c.node.Put(fields[1], strings.Join(fields[2:], " "))
		fmt.Fprintln(c.out, "OK")
		return nil

	case "get":
		if len(fields) < 2 {
			fmt.Fprintln(c.out, "ERR usage: get <key>")
			return nil
		}
		value, found := c.node.Get(fields[1])
		if !found {
			fmt.Fprintln(c.out, "NOTFOUND")
			return nil
		}
		fmt.Fprintln(c.out, value)
		return nil

	case "ping":
		if len(fields) < 3 {
			fmt.Fprintln(c.out, "ERR usage: ping <id-hex> <addr>")
			return nil
		}
		id, err := NewKeyFromHex(fields[1])
		if err != nil {
			fmt.Fprintf(c.out, "ERR %v\n", err)
			return nil
		}
		dst := NewContact(id, fields[2], c.node.Self().NetID)
		if c.node.Ping(dst) {
			fmt.Fprintln(c.out, "OK")
		} else {
			fmt.Fprintln(c.out, "FAIL")
		}
		return nil

	case "exit", "quit":
		return io.EOF

	default:
		fmt.Fprintln(c.out, "ERR unknown command")
		return nil
	}
}

// Run starts a REPL on c.in until EOF or "exit".
func (c *CLI) Run() error {
	sc := bufio.NewScanner(c.in)
	for sc.Scan() {
		if err := c.RunLine(sc.Text()); err == io.EOF {
			return nil
		}
	}
	return sc.Err()
}
