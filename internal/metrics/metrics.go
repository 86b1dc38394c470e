package metrics

import "time"

// Recorder receives counters and latencies from the gateway, the watcher and
// deposit sessions.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
