package tabs

import (
	"log"
	"os"
	"strings"
)

var tabsDebugEnabled = strings.EqualFold(os.Getenv("SMARTLAUNCHER_DEBUG"), "1")

func debugLog(format string, args ...interface{}) {
	if tabsDebugEnabled {
		log.Printf(format, args...)
	}
}
