// Package config loads the node CLI surface of spec §6.4 onto a typed
// struct, combining cobra flags with .env defaults the way the teacher's
// services load theirs (godotenv, then explicit flags/env override).
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Node holds the flags the node binary accepts: identity, storage
// location, the three listen ports, an optional seed peer, and this
// node's initial token set.
type Node struct {
	NodeID      uint32
	Directory   string
	IPAddr      string
	GossipPort  int
	RPCPort     int
	XferPort    int
	SeedIPAddr  string
	SeedPort    int
	Tokens      []uint64
}

// GossipAddr, RPCAddr and XferAddr format this node's three advertised
// listen addresses.
func (n Node) GossipAddr() string { return net.JoinHostPort(n.IPAddr, strconv.Itoa(n.GossipPort)) }
func (n Node) RPCAddr() string    { return net.JoinHostPort(n.IPAddr, strconv.Itoa(n.RPCPort)) }
func (n Node) XferAddr() string   { return net.JoinHostPort(n.IPAddr, strconv.Itoa(n.XferPort)) }

// HasSeed reports whether a seed peer was configured for cluster join.
func (n Node) HasSeed() bool { return n.SeedIPAddr != "" }

// SeedAddr formats the seed peer's gossip address.
func (n Node) SeedAddr() string { return net.JoinHostPort(n.SeedIPAddr, strconv.Itoa(n.SeedPort)) }

// BindNodeFlags registers the node command's flags on cmd, defaulting from
// any values already present in the process environment (itself seeded by
// a .env file via LoadDotenv, if present).
func BindNodeFlags(cmd *cobra.Command) *Node {
	n := &Node{}
	flags := cmd.Flags()

	flags.Uint32Var(&n.NodeID, "node-id", envUint32("STIP_NODE_ID", 0), "unique cluster-wide node identifier")
	flags.StringVar(&n.Directory, "directory", envString("STIP_DIRECTORY", "./data"), "data directory root")
	flags.StringVar(&n.IPAddr, "ip-addr", envString("STIP_IP_ADDR", "127.0.0.1"), "address this node advertises to peers")
	flags.IntVar(&n.GossipPort, "gossip-port", envInt("STIP_GOSSIP_PORT", 7000), "gossip listen port")
	flags.IntVar(&n.RPCPort, "rpc-port", envInt("STIP_RPC_PORT", 7001), "RPC listen port")
	flags.IntVar(&n.XferPort, "xfer-port", envInt("STIP_XFER_PORT", 7002), "tile transfer listen port")
	flags.StringVar(&n.SeedIPAddr, "seed-ip-addr", envString("STIP_SEED_IP_ADDR", ""), "seed peer address for cluster join (optional)")
	flags.IntVar(&n.SeedPort, "seed-port", envInt("STIP_SEED_PORT", 7000), "seed peer gossip port")
	flags.Uint64SliceVar(&n.Tokens, "token", nil, "DHT ring token owned by this node (repeatable)")

	return n
}

// Validate checks the flag combination is coherent before the node starts.
func (n *Node) Validate() error {
	if n.Directory == "" {
		return fmt.Errorf("config: directory is required")
	}
	if len(n.Tokens) == 0 {
		return fmt.Errorf("config: at least one --token is required")
	}
	if n.SeedIPAddr != "" && n.SeedPort == 0 {
		return fmt.Errorf("config: seed-port is required alongside seed-ip-addr")
	}
	return nil
}

// LoadDotenv loads a .env file from the working directory into the process
// environment if one exists; a missing file is not an error.
func LoadDotenv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	return godotenv.Load()
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envUint32(key string, def uint32) uint32 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			return uint32(n)
		}
	}
	return def
}
