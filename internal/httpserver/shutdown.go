package httpserver

import "time"

// ShutdownTimeout is the fallback when no shutdown timeout is configured.
var ShutdownTimeout = 10 * time.Second
