// Package remote extracts target-code charge rows from a network-hosted
// database one entity at a time, with keyset pagination, retries and a
// durable progress record so interrupted runs resume where they stopped.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gyeh/pricepanel/internal/model"
)

// PageRequest asks for up to Limit rows of one entity with row_key > AfterKey
// whose DRG or procedure code is in the given lists, ordered by row_key.
type PageRequest struct {
	EntityID       string
	AfterKey       int64
	Limit          int
	DRGCodes       []string
	ProcedureCodes []string
}

// Source is a remote hosted database.
type Source interface {
	ListHospitals(ctx context.Context) ([]model.Hospital, error)
	FetchPage(ctx context.Context, req PageRequest) ([]model.RawChargeRow, error)
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// QueryError is a query the remote service accepted but failed to execute.
type QueryError struct {
	Status  string
	Message string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s: %s", e.Status, e.Message)
}

// Retryable reports whether err may succeed on a later attempt. Client errors
// other than 408 and 429 are permanent, as are query errors that are not
// timeouts and context cancellation.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		if se.StatusCode == http.StatusRequestTimeout || se.StatusCode == http.StatusTooManyRequests {
			return true
		}
		return se.StatusCode < 400 || se.StatusCode >= 500
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		return strings.Contains(strings.ToLower(qe.Message), "timeout")
	}
	return true
}
