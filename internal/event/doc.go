// Package event defines the wire schema between clients and the delivery core.
//
// Inbound frames are decoded once at the gateway boundary into a closed set
// of variants (Send, Typing, ReadReceipt); unknown type tags are rejected
// rather than silently ignored. Outbound frames are a typed envelope with a
// JSON payload.
package event
