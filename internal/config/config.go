// Package config declares the environment-driven flags shared by the
// lrcpd and speedd binaries. Flags are set the usual way and can also be
// supplied as environment variables of the same name, via flagx.ArgsFromEnv.
package config

import (
	"flag"
	"net"

	"github.com/m-lab/go/logx"
)

var (
	// Addr is the bind address shared by both servers.
	Addr = flag.String("SOCKET_ADDRESS", "0.0.0.0", "Address to bind the listening socket to.")

	// LogLevel mirrors the LOGLEVEL/DEBUG env vars used to gate verbose logging.
	LogLevel = flag.String("LOGLEVEL", "", "Logging verbosity; set DEBUG=true for verbose output.")
	Debug    = flag.Bool("DEBUG", false, "Enable debug logging.")
)

// Verbose reports whether debug-level logging was requested by either
// LOGLEVEL=debug or DEBUG=true.
func Verbose() bool {
	return *Debug || *LogLevel == "debug"
}

// debugLog is the underlying rate-unlimited logger behind Debugf/Debugln;
// it is only ever reached when Verbose() is true.
var debugLog = logx.NewLogEvery(nil, 0)

// Debugf logs a formatted debug message when Verbose() is true; it is a
// no-op otherwise.
func Debugf(format string, args ...interface{}) {
	if Verbose() {
		debugLog.Printf(format, args...)
	}
}

// Debugln logs a debug message when Verbose() is true; it is a no-op
// otherwise.
func Debugln(args ...interface{}) {
	if Verbose() {
		debugLog.Println(args...)
	}
}

// HostPort joins Addr with a port flag value the way net.Dial expects.
func HostPort(port string) string {
	return net.JoinHostPort(*Addr, port)
}
