// Package toolout translates the line-oriented output of the wrapped
// command-line tools into structured events.
//
// Each tool speaks its own undocumented text protocol. The stateless parsers
// (cdrecord, cdrdao, mkisofs) map one line to zero or more events; the ffmpeg
// progress stream is stateful and requires a Session scoped to a single
// invocation. Unrecognized lines never fail parsing: they simply produce no
// events, and callers keep the raw line in their logs.
//
// Error lines are mapped through an ordered substring table into operator
// messages so the pipeline can surface a single meaningful failure instead of
// raw tool diagnostics. The table is data, not control flow, and is covered
// by its own tests.
package toolout
