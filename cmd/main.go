package main

import (
	"os"
	"time"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// The logger may not exist yet when flags or config are rejected.
		os.Stderr.WriteString("graftloss: " + err.Error() + "\n")
		os.Exit(1)
	}
}
