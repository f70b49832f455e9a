package server

import (
	"encoding/json"
	"net/http"

	"github.com/vango-go/terminal/pkg/transport"
)

// CriticalHeader marks a response as a critical notification.
const CriticalHeader = "X-Vango-Critical"

// CriticalContentType is the content type of critical notifications.
const CriticalContentType = "application/json; charset=UTF-8"

// criticalCodeAttribute carries the catalogue code from the manager to the
// callback writing the notification.
const criticalCodeAttribute = "vango.terminal.critical-code"

// Notification is the envelope of a critical notification.
type Notification struct {
	Caption string `json:"caption"`
	Message string `json:"message"`
	Details string `json:"details"`
	URL     string `json:"url"`
	Code    string `json:"code,omitempty"`
}

type criticalEnvelope struct {
	Critical Notification `json:"critical"`
}

// WriteCriticalNotification writes n as a JSON critical notification with
// status 200. Write failures and panics of the underlying writer are
// swallowed and reported as the returned error.
func WriteCriticalNotification(resp transport.Response, n Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &CriticalError{Err: panicError(r)}
		}
	}()

	body, err := json.Marshal(criticalEnvelope{Critical: n})
	if err != nil {
		return err
	}
	resp.SetContentType(CriticalContentType)
	resp.SetHeader(CriticalHeader, "1")
	resp.SetStatus(http.StatusOK)
	_, err = resp.Writer().Write(body)
	return err
}

// CriticalCode returns the catalogue code the manager attached to req
// before calling Callback.CriticalNotification.
func CriticalCode(req transport.Request) string {
	code, _ := req.Attribute(criticalCodeAttribute).(string)
	return code
}
