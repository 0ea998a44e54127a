// Package protocol defines the wire format shared by the realtime client and hub.
//
// Every frame is a UTF-8 JSON text frame shaped as {"type": string, "data": object}.
// Kinds form a closed set; payloads for known kinds decode into typed structs,
// anything else is forwarded as raw JSON so new server events need no client change.
package protocol
