package providers

import "time"

// Version is stamped at build time with -ldflags "-X ...providers.Version=v1.2.3".
var Version = "dev"

// shutdownTimeout bounds startup connects and graceful shutdown alike.
const shutdownTimeout = 30 * time.Second
