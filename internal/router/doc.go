// Package router implements the Message Router, the dispatch core.
//
// For each inbound event the router:
//   - Authorizes the sender against the conversation's participant set
//   - Persists the message through the durable store (Send only)
//   - Fans the event out to every live handle of every other participant
//   - Acknowledges the sender with the canonical persisted envelope
//
// Persistence is authoritative; fan-out is best-effort per handle. Once a
// message is persisted, fan-out proceeds even if the sender's connection
// is torn down immediately afterwards.
package router
