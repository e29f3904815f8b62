package transfer

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError rejects a batch before anything is opened or stored.
type ValidationError struct {
	Reason string
	Files  []string
}

func (e *ValidationError) Error() string {
	if len(e.Files) == 0 {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, strings.Join(e.Files, ", "))
}

// TransferTimeoutError means the destination tab did not load or acknowledge
// in time. The tab stays open; only the payload is missing.
type TransferTimeoutError struct {
	TabID string
	Stage string
	Wait  time.Duration
}

func (e *TransferTimeoutError) Error() string {
	return fmt.Sprintf("transfer timeout - destination did not %s within %s", e.Stage, e.Wait)
}
