// Package watchdog terminates the process when the scheduler stops making
// progress.
//
// The scheduler resets the LivenessMonitor after every completed cycle,
// paused or not. If no reset arrives within the timeout (a wedged serial
// read, a deadlocked sink) the monitor calls its exit function, by default
// os.Exit(1), with no graceful shutdown. An external supervisor is expected
// to restart the process.
package watchdog
