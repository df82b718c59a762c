package dispatch

const (
	logDispatched     = "Spec dispatched"
	logAccepted       = "Reply accepted"
	logDropped        = "Stale reply dropped"
	logStaleFailure   = "Stale failure dropped"
	logRequestFailed  = "Newest request failed"
	logProtocolBroken = "Protocol violation, stopping dispatcher"
	logRepliesClosed  = "Reply channel closed, stopping dispatcher"
)
