// Package registry implements the Connection Registry component.
//
// The Connection Registry:
//   - Maps each user to the set of currently live connection handles
//   - Permits multiple simultaneous handles per user (multi-device)
//   - Is the source of truth for "is this user reachable now"
//   - Emits edge-triggered presence transitions on the 0↔1 handle boundary
//   - Holds weak references only: it never closes or outlives a handle
package registry
