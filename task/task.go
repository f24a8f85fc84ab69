// Package task provides the Go rendition of the cooperative-coroutine task
// primitive: a goroutine that starts eagerly and runs until its owning
// connection's read or write slot is no longer needed.
package task

import "log"

// Spawn starts fn in a new goroutine immediately (eager start) and recovers
// any panic, logging it rather than letting it crash the process — used
// for transport-level tasks (receive/send loops), where a single bad
// connection must never take the whole reactor down. Server dispatch
// handlers run on a plain goroutine of their own (see server.receiveLoop),
// so a handler panic never reaches this recover and terminates the process.
func Spawn(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("task: recovered panic: %v", r)
			}
		}()
		fn()
	}()
}
