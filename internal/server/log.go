package server

const (
	logRequest        = "HTTP request"
	logReplyOrphaned  = "Reply for abandoned request released"
	logRepliesClosed  = "Channel closed, failing waiters"
	logServerStarting = "Starting server"
	logServerStopped  = "Server stopped"
	logEncodeFailed   = "Failed to write response"
)
