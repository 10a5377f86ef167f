package services

import "renderforge/internal/queue"

// FailureStatus maps a pipeline error to the terminal status the job
// should be left in: cooperative cancellation becomes cancelled, every
// other failure becomes error.
func FailureStatus(err error) queue.Status {
	if IsCancelled(err) {
		return queue.StatusCancelled
	}
	return queue.StatusError
}
