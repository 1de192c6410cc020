package cotask

// State is a task's position in the lifecycle state machine (spec.md §3).
type State int

const (
	// StateFree marks an unoccupied pool slot.
	StateFree State = iota
	// StateScheduled marks a task sitting in the ready queue.
	StateScheduled
	// StateRunning marks the single task currently executing (== current).
	StateRunning
	// StateDelayed marks a task sleeping in the delay heap.
	StateDelayed
	// StateJoining marks a task blocked in Join, linked into another
	// task's joiners queue.
	StateJoining
	// StateWaiting marks a task blocked in a semaphore Wait, linked into
	// that semaphore's waiters queue.
	StateWaiting
	// StatePaused marks a task suspended by Pause until a matching Resume.
	StatePaused
	// StateZombie marks a task killed but not yet reaped.
	StateZombie
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "Free"
	case StateScheduled:
		return "Scheduled"
	case StateRunning:
		return "Running"
	case StateDelayed:
		return "Delayed"
	case StateJoining:
		return "Joining"
	case StateWaiting:
		return "Waiting"
	case StatePaused:
		return "Paused"
	case StateZombie:
		return "Zombie"
	default:
		return "Unknown"
	}
}

// TaskFunc is a task's entry function: it receives the Kernel it runs under
// (so it can call Yield/Delay/Join/... on itself) and the argument passed
// to Create, and returns the value delivered to joiners.
type TaskFunc func(k *Kernel, arg any) int

// task is one task control block. One per pool slot; co-located
// entry-only fields (entryFn/entryArg) are logically the "far end" of the
// slot per spec.md §3 — on real hardware they sit at the stack-growth
// boundary so overflow clobbers them first rather than live state. Go
// goroutines manage their own growable stacks, so there is no literal
// memory layout to preserve, but the fields are still only ever read once,
// at first resumption, matching the original contract.
type task struct {
	id        int
	state     State
	next      *task // free-list / waiter-queue link
	wakeTs    uint32
	joiners   waiterQueue
	ret       int
	retStatus Status
	entryFn   TaskFunc
	entryArg  any
	resumeCh  chan struct{}

	// orphan is true exactly when a Paused task is not physically linked
	// anywhere (no queue or heap link points at it), and false whenever
	// it still is. A self-pause (Paused while Running) starts orphan
	// immediately, since nothing but current ever pointed at it. A
	// non-current Pause leaves orphan false — the target keeps whatever
	// link it already held (normally the ready queue) — until the
	// scheduler's own epoch drain dequeues it and drops it without
	// running it, at which point switchTo flips orphan to true. Kill
	// consults orphan to choose between reaping a Paused target
	// synchronously (orphan) or deferring to that same natural dequeue
	// (not orphan, reaped lazily like any other Zombie-while-linked
	// task); Resume consults it to choose between re-enqueuing a truly
	// detached task and merely flipping a still-linked one back to
	// Scheduled in place.
	orphan bool
}

// lookup resolves a cid to its slot. cids are 1-based and stable for a
// slot's current occupancy (spec.md §3, invariant (c)).
func (k *Kernel) lookup(id int) *task {
	if id < 1 || id > len(k.pool) {
		return nil
	}
	return &k.pool[id-1]
}

// Create allocates a free slot, schedules the new task to run in the next
// epoch, and returns its cid.
func (k *Kernel) Create(fn TaskFunc, arg any) (int, Status) {
	t := k.freeHead
	if t == nil {
		k.log.Warnf("cotask: create failed, pool exhausted")
		return 0, StatusResrcExhausted
	}
	k.freeHead = t.next
	t.next = nil
	t.entryFn = fn
	t.entryArg = arg
	t.ret = 0
	t.retStatus = StatusSuccess
	t.orphan = false
	t.joiners = waiterQueue{}
	ch := make(chan struct{})
	t.resumeCh = ch

	go k.runTask(t, ch)
	k.scheduleReady(t)
	k.log.Debugf("cotask: created task %d", t.id)
	return t.id, StatusSuccess
}

// runTask is the trampoline: it waits for its first resume, runs the entry
// function to completion (recovering a panic as an implicit failure
// return), and hands the result to the normal termination path. It never
// returns to its caller in the ordinary sense — like the original
// trampoline, it only ever "returns" by falling off the end of this
// function, which simply ends the goroutine.
func (k *Kernel) runTask(t *task, ch chan struct{}) {
	if _, ok := <-ch; !ok {
		// Killed before ever running once.
		return
	}
	ret := k.runEntry(t)
	k.terminateNormal(t, ret)
}

func (k *Kernel) runEntry(t *task) (ret int) {
	defer func() {
		if r := recover(); r != nil {
			k.log.Warnf("cotask: task %d entry panicked: %v", t.id, r)
			ret = -1
		}
	}()
	return t.entryFn(k, t.entryArg)
}

// Self returns the id of the currently running task. Meaningful only when
// called from task context.
func (k *Kernel) Self() int {
	return k.current.id
}

// Yield re-enqueues the current task on the ready queue and returns control
// to the scheduler; the task does not run again until the next epoch at
// the earliest.
func (k *Kernel) Yield() {
	t := k.current
	k.scheduleReady(t)
	k.suspend(t)
}

// Delay sleeps the current task for ms milliseconds. A non-positive delay
// is equivalent to Yield (spec.md §4.3, "Ordering guarantees": delay(0) may
// be treated as yield).
func (k *Kernel) Delay(ms int32) {
	if ms <= 0 {
		k.Yield()
		return
	}
	t := k.current
	t.wakeTs = k.host.NowMs() + uint32(ms)
	t.state = StateDelayed
	if !k.delayQ.Push(t) {
		// The delay heap's capacity is a configuration constant sized to
		// the task pool; spec.md does not define overflow behavior here,
		// so fail safe by running again next epoch instead of dropping
		// the task.
		k.log.Warnf("cotask: delay heap exhausted, task %d yields instead", t.id)
		k.scheduleReady(t)
	}
	k.suspend(t)
}

// Join blocks the current task until the task identified by id terminates
// (normally or by kill), then delivers its return value.
func (k *Kernel) Join(id int, ret *int) Status {
	t := k.current
	target := k.lookup(id)
	if target == nil || target == t || target.state == StateFree || target.state == StateZombie {
		return StatusInvalid
	}

	target.joiners.enqueue(t)
	t.state = StateJoining
	t.retStatus = StatusSuccess
	k.suspend(t)

	if t.retStatus != StatusSuccess {
		return t.retStatus
	}
	if ret != nil {
		*ret = t.ret
	}
	return StatusSuccess
}

// Kill marks the target task Zombie. Its current joiners are woken
// immediately with StatusKilled (spec.md §9 fixes the original's bug of
// marking the killer's joiners instead of the victim's). If the target is
// not physically linked into any queue — it is either the currently
// running task, or a Paused task the scheduler has already dequeued and
// dropped (orphan) — its slot is freed immediately; otherwise reaping is
// deferred to the next natural dequeue of its queue link (see SPEC_FULL.md
// §3.1); a Paused target that is still linked is reaped there as a Zombie.
func (k *Kernel) Kill(id int) Status {
	target := k.lookup(id)
	if target == nil || target.state == StateFree || target.state == StateZombie {
		return StatusInvalid
	}

	prev := target.state
	selfKill := prev == StateRunning
	orphan := selfKill || (prev == StatePaused && target.orphan)
	target.state = StateZombie
	k.reapJoiners(target, StatusKilled, 0)
	k.log.Debugf("cotask: killed task %d (was %s)", target.id, prev)

	if orphan {
		k.freeSlot(target)
	}
	if selfKill {
		// target == k.current: resumeCh is now closed, so this blocks
		// only long enough to hand control back to the scheduler, then
		// unwinds the goroutine via runtime.Goexit instead of returning.
		k.suspend(target)
	}
	return StatusSuccess
}

// Pause suspends the target task until a matching Resume. A task sitting
// in the ready queue is left physically linked there (orphan stays
// false): the scheduler's epoch drain recognizes StatePaused the same way
// it recognizes StateZombie and silently drops it without running it,
// and it is that drop — not this call — that marks the task unlinked
// (see SPEC_FULL.md §3.1 and switchTo). Pausing a Delayed or Waiting task
// is unsupported, per spec.md §9.
func (k *Kernel) Pause(id int) Status {
	target := k.lookup(id)
	if target == nil || target.state == StateFree || target.state == StateZombie {
		return StatusInvalid
	}
	target.state = StatePaused
	if target == k.current {
		target.orphan = true
		k.suspend(target)
	}
	return StatusSuccess
}

// Resume re-enqueues a Paused task onto the ready queue — unless it is
// still physically linked wherever it was sitting when Pause was called
// (a non-current target that the scheduler has not yet dequeued once
// since), in which case that existing link already guarantees exactly one
// future dequeue, and flipping the state back to Scheduled in place is all
// that is needed. Re-enqueuing it anyway would link it a second time and
// sever whatever task was chained after it (see SPEC_FULL.md §3.1). Any
// state other than Paused is Invalid.
func (k *Kernel) Resume(id int) Status {
	target := k.lookup(id)
	if target == nil || target.state != StatePaused {
		return StatusInvalid
	}
	if !target.orphan {
		target.state = StateScheduled
		return StatusSuccess
	}
	target.orphan = false
	k.scheduleReady(target)
	return StatusSuccess
}
