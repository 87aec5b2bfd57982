package server

// Route path constants for the loopback redirect listener
const (
	RouteCallback = "/callback"
	RouteHealth   = "/healthz"
)
