package moderator

import (
	"fmt"
	"sync"
	"time"
)

// TurnToken identifies one human turn. Tokens increase monotonically; zero
// means no active turn.
type TurnToken uint64

// TaskKind is the purpose of a scheduled task.
type TaskKind int

const (
	// TaskPoll is the guidance poll timer. It is not tied to a turn.
	TaskPoll TaskKind = iota
	// TaskSettle is the post-speech check for a turn.
	TaskSettle
	// TaskRetry re-attempts a turn action after a transient obstacle.
	TaskRetry
)

// String returns the task kind name.
func (k TaskKind) String() string {
	switch k {
	case TaskPoll:
		return "poll"
	case TaskSettle:
		return "settle"
	case TaskRetry:
		return "retry"
	default:
		return fmt.Sprintf("TaskKind(%d)", int(k))
	}
}

// TaskKey names a scheduling slot. At most one task is pending per key.
type TaskKey struct {
	Kind  TaskKind
	Token TurnToken
}

// TaskID is the handle of one scheduled task. IDs are never reused.
type TaskID uint64

type scheduledTask struct {
	key   TaskKey
	timer Timer
}

// Scheduler runs keyed, cancellable delayed tasks. A task whose handle was
// cancelled never acts, even if its timer already fired: the callback must
// Claim its ID, under the same lock that guards Cancel, before doing work.
type Scheduler struct {
	clock Clock

	mu     sync.Mutex
	nextID TaskID
	tasks  map[TaskID]*scheduledTask
	byKey  map[TaskKey]TaskID
}

// NewScheduler creates a scheduler driven by clock.
func NewScheduler(clock Clock) *Scheduler {
	if clock == nil {
		clock = RealClock{}
	}
	return &Scheduler{
		clock: clock,
		tasks: make(map[TaskID]*scheduledTask),
		byKey: make(map[TaskKey]TaskID),
	}
}

// Schedule runs fn after d. Any task already pending under key is cancelled
// and replaced. fn receives the task's ID for Claim.
func (s *Scheduler) Schedule(key TaskKey, d time.Duration, fn func(TaskID)) TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.byKey[key]; ok {
		s.cancelLocked(prev)
	}

	s.nextID++
	id := s.nextID
	task := &scheduledTask{key: key}
	s.tasks[id] = task
	s.byKey[key] = id
	task.timer = s.clock.AfterFunc(d, func() { fn(id) })
	return id
}

// Claim marks the task as fired and reports whether it was still live.
// A false result means the task was cancelled or replaced.
func (s *Scheduler) Claim(id TaskID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return false
	}
	delete(s.tasks, id)
	if s.byKey[task.key] == id {
		delete(s.byKey, task.key)
	}
	return true
}

// Cancel cancels one task. It reports whether the task was still pending.
func (s *Scheduler) Cancel(id TaskID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(id)
}

// CancelKey cancels the task pending under key, if any.
func (s *Scheduler) CancelKey(key TaskKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[key]
	if !ok {
		return false
	}
	return s.cancelLocked(id)
}

// CancelToken cancels every task belonging to token and returns how many
// were cancelled.
func (s *Scheduler) CancelToken(token TurnToken) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, task := range s.tasks {
		if task.key.Token == token && task.key.Kind != TaskPoll {
			s.cancelLocked(id)
			n++
		}
	}
	return n
}

// CancelAll cancels every pending task.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.tasks {
		s.cancelLocked(id)
	}
}

// Pending reports whether a task is pending under key.
func (s *Scheduler) Pending(key TaskKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byKey[key]
	return ok
}

// Len returns the number of pending tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Scheduler) cancelLocked(id TaskID) bool {
	task, ok := s.tasks[id]
	if !ok {
		return false
	}
	if task.timer != nil {
		task.timer.Stop()
	}
	delete(s.tasks, id)
	if s.byKey[task.key] == id {
		delete(s.byKey, task.key)
	}
	return true
}
