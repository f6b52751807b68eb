// The peerbench server accepts transfer1 connections from any peer,
// drains whatever data it receives and acknowledges it. It prints its
// own identity so a client can address it, and runs until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/peerbench/peerbench/internal/handler"
	"github.com/peerbench/peerbench/internal/netx"
	"github.com/peerbench/peerbench/pkg/transfer1/spec"
	"github.com/peerbench/peerbench/pkg/version"
)

var (
	flagListen       = flagx.StringArray{}
	flagIdentity     = flag.String("identity", "peerbench.key", "File storing this server's identity key")
	flagMaxBytes     = flag.Int64("max-bytes", 0, "Maximum payload bytes accepted per session (0 = unlimited)")
	flagDrainTimeout = flag.Duration("drain-timeout", 30*time.Second, "How long to wait for in-flight sessions on shutdown")
	flagDebug        = flag.Bool("debug", false, "Enable debug logging")
)

func init() {
	flag.Var(&flagListen, "listen", "Listen multiaddr (repeatable)")
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "failed to read args from env")

	log.SetReportCaller(true)
	log.SetReportTimestamp(true)
	if *flagDebug {
		log.SetLevel(log.DebugLevel)
	}

	promSrv := prometheusx.MustServeMetrics()
	defer promSrv.Close()

	listen := []string(flagListen)
	if len(listen) == 0 {
		listen = []string{"/ip4/0.0.0.0/tcp/4242"}
	}

	key, err := netx.LoadOrCreateIdentity(*flagIdentity)
	rtx.Must(err, "failed to load identity key")

	endpoint, err := netx.New(netx.Config{
		PrivateKey:  key,
		ListenAddrs: listen,
		Protocol:    spec.ProtocolID,
	})
	rtx.Must(err, "failed to create endpoint")

	identity, err := netx.EncodeIdentity(key)
	rtx.Must(err, "failed to encode identity")

	log.Info("peerbench server starting", "version", version.Version)
	for _, a := range endpoint.Addrs() {
		log.Info("listening", "addr", a)
	}
	// The identity goes to stdout so it can be copied into a client
	// invocation.
	fmt.Printf("Server identity: %s\n", identity)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := handler.New(*flagMaxBytes)
	defer h.Stop()
	// Handlers get a lifecycle context independent of the interrupt
	// signal: on shutdown, in-flight sessions finish their connection
	// lifecycle, bounded only by the drain timeout below.
	endpoint.Serve(context.Background(), h)

	<-ctx.Done()
	log.Info("shutting down, draining active sessions")
	drainCtx, cancel := context.WithTimeout(context.Background(), *flagDrainTimeout)
	defer cancel()
	if err := endpoint.Shutdown(drainCtx); err != nil {
		log.Error("shutdown incomplete", "error", err)
	}
}
