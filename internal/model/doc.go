// Package model defines shared data types used across the PingMe delivery core.
//
// Conventions:
//   - IDs: opaque strings for users and conversations (assigned by the
//     identity provider and the durable store), int64 for message IDs
//   - Timestamps: time.Time in UTC, assigned by the durable store at
//     persist time
package model
