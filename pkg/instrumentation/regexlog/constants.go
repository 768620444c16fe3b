package regexlog

// env vars read by the runtime recorder
const (
	ENV_DISABLE          = "REGEXLOG_DISABLE"
	ENV_MAX_SEEN_ENTRIES = "REGEXLOG_MAX_SEEN_ENTRIES"
)

const (
	defaultMaxSeenEntries = 100000
	logBufferInitialSize  = 256
	logFileMode           = 0600
)
