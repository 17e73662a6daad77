// Package stomp implements a STOMP 1.2 client session over a WebSocket.
//
// The client:
//   - Dials the broker with gorilla/websocket, raw or SockJS framing
//   - Performs the CONNECT/CONNECTED handshake with a bearer token
//   - Negotiates and sends heart-beats, detects silent brokers
//   - Queues inbound MESSAGE frames in arrival order
//
// One Client is one transport: once it fails or is closed it is discarded,
// and reconnection is the caller's job.
package stomp
