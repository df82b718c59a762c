package offload

const (
	logChannelStarted   = "Evaluation channel started"
	logChannelStopped   = "Evaluation channel stopped"
	logContextDone      = "Context done, stopping evaluation channel"
	logQueueDiscarded   = "Discarding queued specs on stop"
	logEvaluated        = "Grid evaluated"
	logEvaluationFailed = "Grid evaluation failed, request will not be answered with a raster"
	logUnrecognized     = "Evaluator returned unrecognized channels, cells classified as mixed"
	logReplyAbandoned   = "Stopped while delivering reply, releasing raster"
)
