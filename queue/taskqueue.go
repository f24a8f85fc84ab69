package queue

// TaskQueue is the chunked MPMC queue of closures the reactor drains on
// every iteration of its event loop, instantiated from the generic MPMC.
type TaskQueue = MPMC[func()]

// NewTaskQueue returns an empty task queue.
func NewTaskQueue() *TaskQueue {
	return NewMPMC[func()]()
}
