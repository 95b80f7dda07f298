// Package device runs the sensing side of bloom.
//
// A Loop wakes every sensor interval, reads the orientation and light
// sensors, and takes the shared state lock once to advance the countdown,
// apply flip and light changes and drain the event bus. Drained events are
// handed to local consumers and turned into broadcast requests for the
// network side after the lock is released.
package device
