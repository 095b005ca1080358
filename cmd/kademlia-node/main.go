// Command kademlia-node runs a single Kademlia participant: it binds a UDP
// socket, optionally joins an existing network through a bootstrap contact,
// optionally serves Prometheus metrics over HTTP, and then either drops into
// the interactive REPL defined in kademlia/cli.go (serve) or runs a single
// ping, put or get and exits.
//
// Grounded on labs/main.go and labs/kademlia/cmd/cli/main.go, generalized
// from flag.String to github.com/urfave/cli/v2 subcommands per
// SPEC_FULL.md §4.9.
package main

import (
	"crypto/sha1"
	"fmt"
	"net/http"
	"os"
	"time"

	ethlog "github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/kadnet/dht/kademlia"
)

// sha1Hash is the reference HashFunc: SHA-1 truncated/extended to KeyLen
// (SPEC_FULL.md §4.1; KeyLen is 20 bytes, which is exactly a SHA-1 digest,
// so no truncation actually occurs at the reference width).
func sha1Hash(s string) kademlia.Key {
	sum := sha1.Sum([]byte(s))
	var k kademlia.Key
	copy(k[:], sum[:])
	return k
}

func loadConfig(c *cli.Context) (kademlia.Config, error) {
	cfg := kademlia.DefaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		cfg, err = kademlia.LoadConfigFile(path)
		if err != nil {
			return cfg, fmt.Errorf("loading config file: %w", err)
		}
	}
	if v := c.String("net-id"); v != "" {
		cfg.NetID = v
	}
	if v := c.String("node-id"); v != "" {
		cfg.NodeID = v
	}
	if v := c.String("addr"); v != "" {
		cfg.BindAddr = v
	}
	if v := c.String("bootstrap-addr"); v != "" {
		cfg.BootstrapAddr = v
	}
	if v := c.String("bootstrap-id"); v != "" {
		cfg.BootstrapID = v
	}
	if v := c.Int("k"); v > 0 {
		cfg.K = v
	}
	if v := c.Int("alpha"); v > 0 {
		cfg.Alpha = v
	}
	if v := c.Duration("timeout"); v > 0 {
		cfg.Timeout = v
	}
	return cfg, nil
}

func startNode(c *cli.Context) (*kademlia.Node, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if cfg.NetID == "" {
		return nil, fmt.Errorf("--net-id is required")
	}
	if cfg.BindAddr == "" {
		return nil, fmt.Errorf("--addr is required")
	}

	node, err := kademlia.NewNode(cfg, sha1Hash)
	if err != nil {
		return nil, err
	}

	if cfg.BootstrapAddr != "" {
		id, err := kademlia.NewKeyFromHex(cfg.BootstrapID)
		if err != nil {
			id = kademlia.RandomKey() // placeholder; the peer drops requests addressed to any id but its own
		}
		peer := kademlia.NewContact(id, cfg.BootstrapAddr, cfg.NetID)
		time.Sleep(150 * time.Millisecond) // let sibling sockets on localhost come up
		if err := node.Bootstrap(peer); err != nil {
			ethlog.Warn("bootstrap failed", "err", err)
		}
	}

	if port := c.Int("metrics-port"); port > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(node.MetricsRegistry(), promhttp.HandlerOpts{}))
		go func() {
			addr := fmt.Sprintf(":%d", port)
			if err := http.ListenAndServe(addr, mux); err != nil {
				ethlog.Warn("metrics server stopped", "err", err)
			}
		}()
	}

	return node, nil
}

var commonFlags = []cli.Flag{
	&cli.StringFlag{Name: "config", Usage: "optional YAML config file"},
	&cli.StringFlag{Name: "net-id", Usage: "network identifier; peers on a different net-id are ignored"},
	&cli.StringFlag{Name: "node-id", Usage: "40-hex node id (default: random)"},
	&cli.StringFlag{Name: "addr", Usage: "UDP listen address, e.g. 127.0.0.1:9001"},
	&cli.StringFlag{Name: "bootstrap-addr", Usage: "optional bootstrap peer UDP address"},
	&cli.StringFlag{Name: "bootstrap-id", Usage: "bootstrap peer 40-hex id (if omitted, a random placeholder is used, which the peer does not answer)"},
	&cli.IntFlag{Name: "k", Usage: "bucket size / replication factor (default 20)"},
	&cli.IntFlag{Name: "alpha", Usage: "lookup concurrency (default 3)"},
	&cli.DurationFlag{Name: "timeout", Usage: "per-RPC timeout (default 5s)"},
	&cli.IntFlag{Name: "metrics-port", Usage: "if set, serve Prometheus metrics on this port"},
}

func main() {
	ethlog.SetDefault(ethlog.NewLogger(ethlog.NewTerminalHandlerWithLevel(os.Stderr, ethlog.LevelInfo, false)))

	app := &cli.App{
		Name:  "kademlia-node",
		Usage: "run or drive a Kademlia DHT node",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "start a node and drop into the interactive command shell",
				Flags: commonFlags,
				Action: func(c *cli.Context) error {
					node, err := startNode(c)
					if err != nil {
						return err
					}
					defer node.Close()

					fmt.Printf("node up: id=%s addr=%s\n", node.Self().ID.String(), node.Self().Addr)
					fmt.Println("commands: put <key> <value> | get <key> | ping <id-hex> <addr> | exit")
					shell := kademlia.NewCLI(node, os.Stdin, os.Stdout)
					return shell.Run()
				},
			},
			{
				Name:      "ping",
				Usage:     "start a node, ping a single peer, print the result, and exit",
				ArgsUsage: "<id-hex> <addr>",
				Flags:     commonFlags,
				Action: func(c *cli.Context) error {
					if c.NArg() < 2 {
						return fmt.Errorf("usage: ping <id-hex> <addr>")
					}
					node, err := startNode(c)
					if err != nil {
						return err
					}
					defer node.Close()

					id, err := kademlia.NewKeyFromHex(c.Args().Get(0))
					if err != nil {
						return err
					}
					dst := kademlia.NewContact(id, c.Args().Get(1), node.Self().NetID)
					if node.Ping(dst) {
						fmt.Println("OK")
						return nil
					}
					fmt.Println("FAIL")
					return cli.Exit("", 1)
				},
			},
			{
				Name:      "put",
				Usage:     "start a node, store a key/value pair on the network, and exit",
				ArgsUsage: "<key> <value>",
				Flags:     commonFlags,
				Action: func(c *cli.Context) error {
					if c.NArg() < 2 {
						return fmt.Errorf("usage: put <key> <value>")
					}
					node, err := startNode(c)
					if err != nil {
						return err
					}
					defer node.Close()

					node.Put(c.Args().Get(0), c.Args().Get(1))
					fmt.Println("OK")
					return nil
				},
			},
			{
				Name:      "get",
				Usage:     "start a node, look up a key on the network, print it, and exit",
				ArgsUsage: "<key>",
				Flags:     commonFlags,
				Action: func(c *cli.Context) error {
					if c.NArg() < 1 {
						return fmt.Errorf("usage: get <key>")
					}
					node, err := startNode(c)
					if err != nil {
						return err
					}
					defer node.Close()

					value, found := node.Get(c.Args().Get(0))
					if !found {
						fmt.Println("NOTFOUND")
						return cli.Exit("", 1)
					}
					fmt.Println(value)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "ERR:", err)
		os.Exit(1)
	}
}
