package retail

import (
	"fmt"
	"net/http"

	"github.com/shelfbase/catalog-harvester/internal/catalog"
)

// APIError reports a non-2xx reply from the catalogue API.
type APIError struct {
	StatusCode int
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("catalogue api %s: status %d", e.Endpoint, e.StatusCode)
}

// Temporary reports whether the failure is worth retrying. Throttling
// and server-side errors are transient; client errors are not.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Unwrap surfaces auth rejections as catalog.ErrAuthDenied so callers
// can match them with errors.Is.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return catalog.ErrAuthDenied
	}
	return nil
}
