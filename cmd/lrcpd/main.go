// Binary lrcpd runs the Line-Reversal Control Protocol server: a UDP
// endpoint that accepts LRCP sessions and echoes each line it receives
// back reversed.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/m-lab/protocol-challenges/internal/config"
	"github.com/m-lab/protocol-challenges/internal/lrcp"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	udpPort  = flag.String("UDP_PORT", "9999", "UDP port to listen on for LRCP sessions.")
	promPort = flag.String("prom", ":9090", "Prometheus metrics export address and port.")
)

func main() {
	flag.Parse()
	flagx.ArgsFromEnv(flag.CommandLine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	promSrv := prometheusx.MustStartPrometheus(*promPort)
	defer promSrv.Shutdown(ctx)

	config.Debugln("lrcpd: debug logging enabled")

	addr := config.HostPort(*udpPort)
	srv, err := lrcp.Listen(ctx, addr)
	rtx.Must(err, "Could not bind LRCP socket on %s", addr)
	log.Printf("lrcpd: listening on %s", srv.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("lrcpd: shutting down")
		cancel()
	}()

	if err := srv.Serve(ctx); err != nil {
		log.Fatal(err)
	}
}
