// Package broker is the validation and execution gateway of the privileged
// helper. It accepts one command request at a time, verifies the executable,
// arguments, working directory, and log path against strict allow-lists, and
// only then spawns the process.
//
// Validation failures are reported as reserved negative exit codes in the
// command result, never as panics or RPC errors: the helper must stay alive
// no matter what a client sends. Non-negative codes are the tool's own exit
// status, with values above 128 meaning the process died from signal
// (code-128).
//
// The single in-flight process is tracked in a mutex-guarded slot; a second
// run request while one is active is rejected as busy rather than queued.
package broker
