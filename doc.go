// Package cotask is a cooperative, single-threaded task kernel modeled on
// the scheduler of a severely memory-constrained microcontroller runtime.
//
// There is no preemption, and the task pool never grows once a Kernel is
// built: a fixed pool of task slots is created up front (each Create still
// starts a goroutine and allocates its resume channel), and tasks voluntarily
// yield control back to the scheduler by calling Yield, Delay, Join, or a
// semaphore Wait. The kernel itself never runs two tasks at once; it hands
// control to exactly one task goroutine at a time and blocks until that
// task suspends again.
//
// The host embedding the kernel supplies a monotonic millisecond clock and
// an idle primitive through the Host interface; everything else (task
// lifecycle, timed sleep, join, kill, pause/resume, counting semaphores) is
// provided by this package.
package cotask
