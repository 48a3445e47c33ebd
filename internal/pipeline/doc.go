// Package pipeline orchestrates multi-stage disc workflows. A runner
// owns one run at a time and drives it through a fixed phase machine:
// validating, converting, generating-descriptor, executing, and
// cleaning-up. Progress events from the tool parsers and phase
// transitions are applied by a single goroutine so status reads never
// observe a torn update. Cleanup always runs, and the first failure
// recorded for a run is the one it reports.
package pipeline
