// Package taskqueue marshals callables onto the target window's thread.
// Producers append under a lock and post a private message; the window
// procedure drains the queue when that message arrives.
package taskqueue

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"overlayhook/internal/logging"
)

// Private message parameters. The message id itself is registered per
// session (RegisterWindowMessage) with WM_USER+0x88 as fallback.
const (
	MagicWParam = 0x908988
	TaskLParam  = 0x908987
)

// ErrNoWindow is returned when scheduling before a window is attached.
var ErrNoWindow = errors.New("taskqueue: no window attached")

// Poster wakes the window thread.
type Poster interface {
	Attached() bool
	// PostTask posts the private task message to the attached window.
	PostTask() bool
}

// Queue is a FIFO of pending window-thread tasks.
type Queue struct {
	mu     sync.Mutex
	tasks  []func()
	poster Poster
	logger *zap.Logger
}

func New(poster Poster) *Queue {
	return &Queue{poster: poster, logger: logging.L("taskqueue")}
}

// Schedule appends fn and signals the window thread. Calling it without an
// attached window is a programming error: debug builds panic, release
// builds drop the task and return ErrNoWindow.
func (q *Queue) Schedule(fn func()) error {
	if !q.poster.Attached() {
		if debugBuild {
			panic("taskqueue: schedule without an attached window")
		}
		q.logger.Warn("task dropped, no window attached")
		return ErrNoWindow
	}

	q.mu.Lock()
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()

	if !q.poster.PostTask() {
		q.logger.Warn("task message not posted, task waits for the next drain")
	}
	return nil
}

// Reset drops pending tasks. Used when the window goes away.
func (q *Queue) Reset() {
	q.mu.Lock()
	q.tasks = nil
	q.mu.Unlock()
}

// Drain runs every queued task in enqueue order. It must only be called on
// the window thread. Tasks scheduled while draining run on a later drain.
func (q *Queue) Drain() int {
	q.mu.Lock()
	tasks := q.tasks
	q.tasks = nil
	q.mu.Unlock()

	for _, fn := range tasks {
		fn()
	}
	return len(tasks)
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// IsTaskMessage reports whether a message is the private task wake-up.
func IsTaskMessage(msg, taskMsg uint32, wParam, lParam uintptr) bool {
	return msg == taskMsg && wParam == MagicWParam && lParam == TaskLParam
}
