package cotask

import "runtime"

// Config stands in for the original's compile-time constants: the task
// pool size N, the per-task stack budget S, and the delay-heap capacity H
// (spec.md §6).
type Config struct {
	// NumTasks is the fixed task pool size (N).
	NumTasks int
	// StackHint documents the per-task stack budget carried over from the
	// original design. Go goroutines grow their stacks on demand, so the
	// kernel never branches on this value; it exists for parity with
	// spec.md §6 and as a hint a caller may use for its own accounting.
	StackHint int
	// HeapCapacity bounds the delay heap (H). Zero defaults to NumTasks,
	// since at most one slot per task can ever be pending a wake.
	HeapCapacity int
}

// Kernel is the scheduler and task-core state: the task pool, free list,
// ready queue, delay heap, and the single currently-running task. Exactly
// one Kernel owns and drives one cooperative run loop; it is not safe to
// call its methods concurrently from goroutines outside the rendezvous
// mechanism described in doc.go.
type Kernel struct {
	host Host
	log  Logger

	pool     []task
	freeHead *task

	readyQ     waiterQueue
	activeHead *task // this epoch's snapshot, walked via task.next
	delayQ     *heap

	current *task

	// loopResumeCh is the scheduler's half of the two-party baton: a task
	// sends on it to give control back to Loop.
	loopResumeCh chan struct{}
}

// New builds a Kernel with cfg.NumTasks pool slots, all initially Free.
// host supplies the clock and idle hook (spec.md §6); log may be nil.
func New(cfg Config, host Host, log Logger) *Kernel {
	n := cfg.NumTasks
	if n <= 0 {
		n = 1
	}
	hc := cfg.HeapCapacity
	if hc <= 0 {
		hc = n
	}

	k := &Kernel{
		host:         host,
		log:          logOf(log),
		pool:         make([]task, n),
		loopResumeCh: make(chan struct{}),
	}
	k.delayQ = newHeap(hc, func(a, b *task) bool { return a.wakeTs < b.wakeTs })

	for i := n - 1; i >= 0; i-- {
		t := &k.pool[i]
		t.id = i + 1
		t.state = StateFree
		t.next = k.freeHead
		k.freeHead = t
	}
	return k
}

// scheduleReady links t onto the ready queue. A Zombie task is linked the
// same way but keeps its Zombie state (spec.md §9 / SPEC_FULL.md §3.1): it
// is reaped, not run, the next time it is dequeued.
func (k *Kernel) scheduleReady(t *task) {
	if t.state != StateZombie {
		t.state = StateScheduled
		t.orphan = false
	}
	k.readyQ.enqueue(t)
}

// Loop runs the scheduler until stop is closed (or forever, if stop is
// nil). Each epoch: snapshot the ready queue, run every task in it to its
// next suspension point, promote due entries from the delay heap into the
// ready queue, and idle until the next deadline if nothing is ready.
//
// This mirrors arduinos_loop's epoch structure: a full pass over the ready
// snapshot never picks up tasks newly scheduled during the same pass
// (spec.md §4.3, "Ordering guarantees").
func (k *Kernel) Loop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		k.activeHead = k.readyQ.takeAll()
		for t := k.activeHead; t != nil; {
			nxt := t.next
			k.switchTo(t)
			t = nxt
		}
		k.activeHead = nil

		k.promoteDue()

		if k.readyQ.empty() {
			if wait, ok := k.nextDeadlineWait(); ok {
				k.host.IdleUntil(wait)
			} else if k.delayQ.Len() == 0 {
				// Nothing ready, nothing delayed: only waiters on
				// semaphores or joins remain. Idle briefly rather than
				// spin; a real board would sleep until the next
				// interrupt instead.
				k.host.IdleUntil(1)
			}
		}
	}
}

// nextDeadlineWait returns how long to idle until the earliest delayed
// task is due, given the current clock.
func (k *Kernel) nextDeadlineWait() (uint32, bool) {
	head, ok := k.delayQ.Peek()
	if !ok {
		return 0, false
	}
	now := k.host.NowMs()
	if head.wakeTs <= now {
		return 0, true
	}
	return head.wakeTs - now, true
}

// promoteDue moves every delay-heap entry whose deadline has passed into
// the ready queue. A Zombie root is promoted immediately regardless of its
// timestamp, so its termination path runs without waiting out a sleep that
// no longer matters (spec.md §4.3 step 4); it is promoted but stays
// Zombie, so the next dequeue reaps it rather than running it.
func (k *Kernel) promoteDue() {
	now := k.host.NowMs()
	for {
		head, ok := k.delayQ.Peek()
		if !ok || (head.state != StateZombie && head.wakeTs > now) {
			return
		}
		k.delayQ.Pop()
		k.scheduleReady(head)
	}
}

// switchTo hands the baton to t and blocks until t gives it back. Called
// only from the scheduler goroutine (inside Loop).
func (k *Kernel) switchTo(t *task) {
	switch t.state {
	case StateZombie:
		k.freeSlot(t)
		return
	case StatePaused:
		// Still linked in some queue when paused; drop silently without
		// running (SPEC_FULL.md §3.1). This dequeue is exactly what
		// severs the task's only physical link, so it must now be
		// treated as unlinked: Kill can reap it synchronously instead of
		// waiting for a dequeue that will never come, and Resume must
		// re-enqueue it rather than flip its state in place.
		t.orphan = true
		return
	}

	t.state = StateRunning
	k.current = t
	ch := t.resumeCh
	ch <- struct{}{}
	<-k.loopResumeCh
	k.current = nil
}

// suspend gives control back to the scheduler and blocks the calling task
// goroutine until it is resumed. Called only from the running task's own
// goroutine, at a well-defined suspension point (Yield, Delay, Join,
// self-Pause, self-Kill).
func (k *Kernel) suspend(t *task) {
	ch := t.resumeCh
	k.loopResumeCh <- struct{}{}
	if _, ok := <-ch; !ok {
		// The slot was freed (killed) while parked: unwind this
		// goroutine right away, exactly like a killed task that never
		// gets resumed again.
		runtime.Goexit()
	}
}

// freeSlot reclaims t's slot: closes its resume channel (waking any
// goroutine still parked on it straight into runtime.Goexit), returns the
// slot to the free list, and marks it Free.
func (k *Kernel) freeSlot(t *task) {
	close(t.resumeCh)
	t.entryFn = nil
	t.entryArg = nil
	t.state = StateFree
	t.next = k.freeHead
	k.freeHead = t
}

// reapJoiners wakes every task currently joined on t with the given status
// and return value, and clears t's joiners list. Used by both the kill
// path and normal termination.
func (k *Kernel) reapJoiners(t *task, status Status, ret int) {
	for j := t.joiners.dequeue(); j != nil; j = t.joiners.dequeue() {
		if j.state == StateZombie {
			// j was killed while joining: this dequeue is its last
			// link, so reap it now instead of stranding it.
			k.freeSlot(j)
			continue
		}
		j.ret = ret
		j.retStatus = status
		k.scheduleReady(j)
	}
}

// terminateNormal is the trampoline's post-entry-function path: wake
// joiners with the task's return value, then free its slot. A Running
// task is never physically linked anywhere, so the free is immediate,
// matching suicide's path (SPEC_FULL.md §3.1).
func (k *Kernel) terminateNormal(t *task, ret int) {
	k.reapJoiners(t, StatusSuccess, ret)
	k.freeSlot(t)
	k.loopResumeCh <- struct{}{}
}
