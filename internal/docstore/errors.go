package docstore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

var (
	// ErrUnavailable marks a transient failure: the backing store could
	// not be reached. Callers may retry; an empty result is never implied.
	ErrUnavailable = errors.New("document store unavailable")

	// ErrPermissionDenied marks an authorization failure. Terminal for
	// the call; callers surface it and never retry automatically.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrValidation marks a payload rejected before any store call.
	ErrValidation = errors.New("invalid payload")
)

// Mongo server error codes that map to permission failures.
const (
	codeUnauthorized        = 13
	codeAuthenticationFault = 18
)

// isNotFound reports whether err means the queried document does not
// exist, even if the driver wrapped the sentinel.
func isNotFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// classify maps driver errors onto the adapter's error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		if cmdErr.Code == codeUnauthorized || cmdErr.Code == codeAuthenticationFault {
			return fmt.Errorf("%s: %w: %s", op, ErrPermissionDenied, cmdErr.Message)
		}
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}
