package dispatch

type DispatcherOpt func(*Dispatcher)

// WithQueueDepth bounds the per-viewer unacked packet queue.
func WithQueueDepth(depth int) DispatcherOpt {
	return func(d *Dispatcher) {
		if depth > 0 {
			d.depth = depth
		}
	}
}
