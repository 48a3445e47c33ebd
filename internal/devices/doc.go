// Package devices describes optical burner devices and validates
// device paths before they are handed to privileged tooling. Actual
// enumeration of attached hardware is supplied by the host environment
// through the Enumerator interface.
package devices
