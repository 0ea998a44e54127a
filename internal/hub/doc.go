// Package hub is the server side of the realtime protocol.
//
// Each websocket client gets an id, an outbound queue drained by its own
// write pump, and a read pump that handles authenticate, join_room,
// leave_room and ping. The hub fans domain events out to users and rooms:
//
//	parking_update           → parking_<lot>, parking_feed
//	reservation_created      → user, lot owner, parking_<lot>
//	charging_session_update  → user, charging_<station>, charging_feed
//	marketplace_transaction  → buyer, seller, marketplace_feed
//	notification             → user
//
// A heartbeat pings every client each interval and terminates clients that
// did not answer the previous ping.
package hub
