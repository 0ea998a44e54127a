// Package connection implements the realtime connection manager.
//
// The Manager:
//   - Owns the single websocket to the realtime hub
//   - Sends the post-login authenticate handshake
//   - Decodes inbound frames and publishes them on the event bus
//   - Reconnects with linear backoff, up to a fixed number of attempts
//   - Sends room join/leave intents over the same socket
package connection
