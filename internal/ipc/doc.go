// Package ipc exposes the privileged helper over JSON-RPC Unix sockets and
// ships the matching client proxy used by the CLI and the pipeline.
//
// The server verifies peer credentials (SO_PEERCRED) on every accepted
// connection before serving a single RPC on it. The proxy wraps each call in
// a one-shot completion handle so a dropped connection can never leave the
// caller hanging, rebuilds the connection lazily after a failure, and applies
// the ping-specific retry-once-after-reconnect policy.
//
// Reuse these request/response types when adding new RPC endpoints to keep
// the protocol stable between CLI and installed helpers.
package ipc
