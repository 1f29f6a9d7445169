// Package gateway implements the Session Gateway component.
//
// The gateway:
//   - Accepts WebSocket upgrades and runs the per-connection handshake
//   - Verifies the bearer token before registering the connection
//   - Runs one read loop per connection, decoding inbound events and
//     forwarding them to the Message Router
//   - Serializes outbound pushes per handle so concurrent fan-out callers
//     never interleave on one stream
//   - Unregisters from the Connection Registry on any close, from either
//     direction; Closed is terminal
package gateway
