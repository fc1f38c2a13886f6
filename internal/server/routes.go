// Package server wires HTTP handlers into a ServeMux for the OfficeChat
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
func SetupRoutes(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.Health)
	mux.HandleFunc("/ws", h.WebSocket)
	mux.HandleFunc("GET /test", h.TestPage)
	mux.HandleFunc("GET /metrics", h.Metrics)

	mux.HandleFunc("POST /api/login", h.Login)
	mux.HandleFunc("GET /api/online-users", h.RequireUser(h.OnlineUsers))
	mux.HandleFunc("GET /api/rooms/{room}/messages", h.RequireUser(h.Messages))
	mux.HandleFunc("POST /api/rooms/{room}/messages", h.RequireUser(h.PostMessage))
	mux.HandleFunc("GET /api/files/{id}/permissions", h.RequireUser(h.FilePermissions))
	mux.HandleFunc("POST /api/admin/users/{email}/approve", h.RequireUser(h.ApproveUser))
	return mux
}
