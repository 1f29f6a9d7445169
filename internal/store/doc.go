// Package store provides the durable store collaborator for the delivery core.
//
// The core treats the store as authoritative for conversations, messages,
// and last-seen timestamps. Expected schema:
//   - conversations: id, is_group, group_name, created_at, updated_at
//   - conversation_participants: conversation_id, user_id
//   - messages: id (bigserial), conversation_id, sender_id, content,
//     attachment_ref, attachment_type, nonce, is_read, created_at
//   - users: id, last_seen
package store
