package common

import (
	"nodestat/status"
)

// Set to true to enable Info logging from startup.
const DEBUG = false

// MT: Constant after initialization; thread-safe
var Log status.Logger = status.Default()

func init() {
	if DEBUG {
		Log.SetLevel(status.LogLevelInfo)
	}
}
