package constants

const (
	ENV  = "API_ENV"
	MODE = "API_MODE"

	ModeBatch  = "batch"
	ModeServer = "server"
	ModeSingle = "single"

	ParamID = "id"

	DefaultLimit = 1000

	ServerOK          = 0
	ServerError       = 1
	ServerInvalidData = 2
	ServerNotFound    = 3
	ServerBusy        = 4

	RunStatusRunning = "RUNNING"
	RunStatusDone    = "DONE"
	RunStatusFailed  = "FAILED"
)
