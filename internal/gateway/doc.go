// Package gateway serves solace-gateway over HTTP.
//
// # Overview
//
// The Gateway owns the SQLite store, the connection registry and the session
// controller, and exposes them through an echo router:
//
//   - GET /ws/new?token=T      - create a conversation, reply chat_created, close
//   - GET /ws/:chat_id?token=T - bind to an owned conversation and chat
//   - GET /health              - liveness plus the number of bound connections
//
// WebSocket upgrades use gorilla/websocket. Each upgraded connection is
// wrapped in a wsConn that serializes writes, caps inbound frame size,
// sends periodic pings and expects pongs within session.pong_wait.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx) // returns after ctx is cancelled and shutdown completes
//
// Shutdown marks the gateway closing, shuts the registry down so bound
// sessions close with 1001, cancels sessions still in their handshake,
// stops the HTTP server, waits for session goroutines and closes the store.
package gateway
