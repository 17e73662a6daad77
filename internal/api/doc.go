// Package api provides the chat server REST client.
//
// Endpoints:
//   - POST /User/signup
//   - POST /User/login
//   - POST /room/create-room
//   - POST /room/join-room
//
// Requests carry a bearer token when one is available. Failures are returned
// as *APIError with the server's message extracted from either a JSON
// {"message"} / {"error"} object or a plain-text body.
package api
