package telegram

import (
	"errors"
	"fmt"
	"time"
)

// Typed login failures. The state machine and the HTTP layer branch on
// these; no caller classifies failures by error text.
var (
	ErrPhoneInvalid          = errors.New("telegram: phone number invalid")
	ErrCodeInvalid           = errors.New("telegram: login code invalid")
	ErrCodeExpired           = errors.New("telegram: login code expired")
	ErrPasswordNeeded        = errors.New("telegram: two-factor password required")
	ErrPasswordInvalid       = errors.New("telegram: two-factor password invalid")
	ErrConnectionUnavailable = errors.New("telegram: connection unavailable")
)

// FloodWaitError reports a rate-limit response from the network. The caller
// owns the retry policy; this package never waits on its own.
type FloodWaitError struct {
	Wait time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("telegram: flood wait %s", e.Wait)
}

// AsFloodWait extracts the mandated wait from err if it is a rate-limit
// failure.
func AsFloodWait(err error) (time.Duration, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw.Wait, true
	}
	return 0, false
}
