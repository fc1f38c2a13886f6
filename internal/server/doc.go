// Package server implements the HTTP and WebSocket surface of OfficeChat.
//
// A Hub owns every live Session and the chat, private and edit rooms they
// belong to. The Gateway translates session lifecycle and inbound events into
// calls on the presence registry, the edit coordinator and the document
// store, and serves the JSON API with the same access rules. Files are split
// by concern: hub management, sessions, rooms, routing, and HTTP handlers.
package server
