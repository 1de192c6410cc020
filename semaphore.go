package cotask

// Semaphore is a counting semaphore built on the same intrusive
// waiterQueue the scheduler uses for the ready queue and joiners lists
// (spec.md §4.4). It has no independent lock: like every other kernel
// structure, it is only ever touched from the single logically-current
// task.
type Semaphore struct {
	count   int
	waiters waiterQueue
	fini    bool
}

// SemInit initializes s with the given initial count.
func (k *Kernel) SemInit(s *Semaphore, count int) Status {
	if count < 0 {
		return StatusInvalid
	}
	s.count = count
	s.waiters = waiterQueue{}
	s.fini = false
	return StatusSuccess
}

// SemWait decrements s's count, blocking the current task if it would go
// negative. Returns StatusSemDestroyed if s is finalized while the task is
// still waiting.
func (k *Kernel) SemWait(s *Semaphore) Status {
	if s.fini {
		return StatusSemDestroyed
	}
	if s.count > 0 {
		s.count--
		return StatusSuccess
	}

	t := k.current
	s.waiters.enqueue(t)
	t.state = StateWaiting
	t.retStatus = StatusSuccess
	k.suspend(t)
	return t.retStatus
}

// SemSignal increments s's count, or transfers the unit directly to the
// first live waiter. Any Zombie waiters found ahead of it in the queue are
// drained and reaped without consuming a unit, per spec.md §4.4.
func (k *Kernel) SemSignal(s *Semaphore) Status {
	if s.fini {
		return StatusSemDestroyed
	}

	for {
		w := s.waiters.dequeue()
		if w == nil {
			s.count++
			return StatusSuccess
		}
		if w.state == StateZombie {
			k.freeSlot(w)
			continue
		}
		w.retStatus = StatusSuccess
		k.scheduleReady(w)
		return StatusSuccess
	}
}

// SemFini finalizes s: every waiter, live or zombie, is drained. Live
// waiters are woken with StatusSemDestroyed; zombie waiters are reaped.
// Subsequent Wait/Signal on s return StatusSemDestroyed.
func (k *Kernel) SemFini(s *Semaphore) Status {
	if s.fini {
		return StatusInvalid
	}
	s.fini = true
	for w := s.waiters.dequeue(); w != nil; w = s.waiters.dequeue() {
		if w.state == StateZombie {
			k.freeSlot(w)
			continue
		}
		w.retStatus = StatusSemDestroyed
		k.scheduleReady(w)
	}
	return StatusSuccess
}
