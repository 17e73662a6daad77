// Package connection implements the RoomConnection component.
//
// A RoomConnection:
//   - Owns at most one STOMP session, bound to a single chat room
//   - Subscribes to the room broadcast topic and the per-user history queue
//   - Announces the user with a join notice and publishes chat content
//   - Reconnects with exponential backoff until the attempt budget is spent
//   - Delivers decoded messages to a revocable handler in receive order
package connection
