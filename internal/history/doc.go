// Package history persists completed pipeline runs to SQLite so the
// CLI can report what has been burned, erased, or imaged on this host.
package history
