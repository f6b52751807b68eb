// The peerbench client measures achievable bandwidth towards a peer
// identified by its hex-encoded public key.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"

	"github.com/peerbench/peerbench/internal/netx"
	"github.com/peerbench/peerbench/pkg/client"
	"github.com/peerbench/peerbench/pkg/transfer1"
	"github.com/peerbench/peerbench/pkg/transfer1/spec"
)

var (
	flagPeer       = flag.String("peer", "", "Hex-encoded public key of the server to measure against")
	flagAddrs      = flagx.StringArray{}
	flagSizes      = flag.String("sizes", "", "Comma-separated payload sizes in bytes (default: 1, 2, 5 and 10 MiB)")
	flagIterations = flag.Int("iterations", spec.DefaultIterations, "Measured transfers per payload size")
	flagDelay      = flag.Duration("delay", spec.InterTrialDelay, "Pause between transfers of the same size")
	flagDebug      = flag.Bool("debug", false, "Enable debug output")
)

func init() {
	flag.Var(&flagAddrs, "addr", "Routing hint multiaddr for the peer (repeatable)")
}

func parseSizes(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	var sizes []int64
	for _, field := range strings.Split(s, ",") {
		v, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid size %q: %w", field, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("invalid size %d: must be positive", v)
		}
		sizes = append(sizes, v)
	}
	return sizes, nil
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "failed to read args from env")

	if *flagDebug {
		log.SetLevel(log.DebugLevel)
	}
	if *flagPeer == "" {
		log.Fatal("missing required -peer flag")
	}

	// Argument errors are fatal here, before any network activity.
	addr, err := netx.ParsePeerAddr(*flagPeer, []string(flagAddrs))
	rtx.Must(err, "invalid -peer")
	sizes, err := parseSizes(*flagSizes)
	rtx.Must(err, "invalid -sizes")

	key, err := netx.GenerateIdentity()
	rtx.Must(err, "failed to generate identity")
	endpoint, err := netx.New(netx.Config{
		PrivateKey: key,
		Protocol:   spec.ProtocolID,
	})
	rtx.Must(err, "failed to create endpoint")
	defer endpoint.Close()

	fmt.Printf("Peer: %s\n", addr.ID)
	fmt.Println("\nStarting benchmarks:")

	c := client.New(client.DialerFunc(func(ctx context.Context) (transfer1.Connection, error) {
		return endpoint.Dial(ctx, addr)
	}), client.Config{
		Sizes:      sizes,
		Iterations: *flagIterations,
		Delay:      *flagDelay,
		Emitter:    &client.HumanReadable{Debug: *flagDebug},
	})

	// The emitter has already reported any failure.
	if _, err := c.Run(context.Background()); err != nil {
		os.Exit(1)
	}
}
