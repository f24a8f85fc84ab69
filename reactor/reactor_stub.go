//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms — the reactor is built
// directly on Linux epoll and eventfd, with no portable equivalent in
// scope.

package reactor

import (
	"errors"
	"time"
)

// Reactor is an unusable placeholder on non-Linux platforms.
type Reactor struct{}

// New always fails on non-Linux platforms.
func New(pollTimeout time.Duration) (*Reactor, error) {
	return nil, errors.New("reactor: only linux is supported")
}

func (r *Reactor) Spawn(fn func())                     {}
func (r *Reactor) AddEvent(conn Pollable, k EventKind) {}
func (r *Reactor) Stop()                               {}

// Pool is an unusable placeholder on non-Linux platforms.
type Pool struct{}

// NewPool always fails on non-Linux platforms.
func NewPool(n int, pollTimeout time.Duration) (*Pool, error) {
	return nil, errors.New("reactor: only linux is supported")
}

func (p *Pool) Next() *Reactor { return nil }
func (p *Pool) Stop()          {}
