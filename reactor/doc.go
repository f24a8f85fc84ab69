// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor implements the readiness-driven event loop that drives
// every Connection in a drift process: one epoll instance, one eventfd
// wake channel, and one pinned OS thread per Reactor.
package reactor
