// Package timeouts defines shared timeout constants.
package timeouts

import "time"

// RunnerStop bounds how long a subscription runner may drain before Stop
// gives up and releases its resources.
const RunnerStop = 5 * time.Second

// RunnerPoll is the wake interval of an idle subscription runner.
const RunnerPoll = 2 * time.Second

// StoreOpen caps the startup wait for a storage backend.
const StoreOpen = 10 * time.Second

// Shutdown limits how long the process waits for servers and runners
// during graceful shutdown.
const Shutdown = 5 * time.Second
