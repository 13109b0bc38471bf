// Binary speedd runs the Speed Daemon server: a TCP endpoint that
// ingests roadside camera plate observations, computes average speeds,
// issues tickets under a one-ticket-per-UTC-day rule, and routes
// tickets to connected dispatchers.
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
	"github.com/m-lab/protocol-challenges/internal/speed"
	"github.com/m-lab/protocol-challenges/internal/ticketlog"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	tcpPort   = flag.String("TCP_PORT", "9999", "TCP port to listen on for Speed Daemon connections.")
	promPort  = flag.String("prom", ":9091", "Prometheus metrics export address and port.")
	ticketLog = flag.String("ticket-log", "", "If set, append every issued ticket to this CSV file.")
)

func main() {
	flag.Parse()
	flagx.ArgsFromEnv(flag.CommandLine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	promSrv := prometheusx.MustStartPrometheus(*promPort)
	defer promSrv.Shutdown(ctx)

	config.Debugln("speedd: debug logging enabled")

	var sink speed.TicketSink
	if *ticketLog != "" {
		logger, err := ticketlog.Open(*ticketLog)
		rtx.Must(err, "Could not open ticket log %s", *ticketLog)
		defer logger.Close()
		sink = logger.Sink
	}

	addr := config.HostPort(*tcpPort)
	srv, err := speed.Listen(ctx, addr, sink)
	rtx.Must(err, "Could not bind Speed Daemon socket on %s", addr)
	log.Printf("speedd: listening on %s", srv.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("speedd: shutting down")
		cancel()
	}()

	if err := srv.Serve(ctx); err != nil {
		log.Fatal(err)
	}
}
