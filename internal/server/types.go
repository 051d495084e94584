// Package server provides the bot's operational HTTP endpoint.
// It only reports health; all user traffic goes through Telegram.
package server

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
	// ActiveSessions is the number of open conversations.
	ActiveSessions int `json:"active_sessions"`
	// ActiveAssets is the number of users holding temporary files.
	ActiveAssets int `json:"active_assets"`
	// Uptime is the time since the process started, formatted by time.Duration.
	Uptime string `json:"uptime"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}
