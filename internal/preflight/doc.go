// Package preflight provides readiness checks for the tools, paths,
// and helper socket that kiln depends on.
//
// These checks run in two contexts:
//   - The CLI "kiln doctor" command runs RunAll to display host health.
//   - Individual checks (CheckDirectoryAccess, CheckTool) back targeted
//     diagnostics before a workflow is attempted.
package preflight
