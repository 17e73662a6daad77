// Package model defines the chat payloads exchanged with the room server.
//
// Conventions:
//   - JSON field names follow the server (camelCase: roomId, isSystem)
//   - Timestamps: decoded leniently (RFC 3339, zone-less ISO, epoch millis,
//     Jackson date arrays), always encoded as RFC 3339 UTC
//   - IDs: server-assigned strings; a random UUID is filled in when absent
package model
