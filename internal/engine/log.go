package engine

const (
	logSessionOpened   = "Session opened"
	logSessionClosed   = "Session closed"
	logResultReplaced  = "Unread result replaced"
	logErrorOverflow   = "Error buffer full, dropping error"
	logDispatcherEnded = "Dispatcher stopped"
)
