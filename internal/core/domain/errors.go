package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTemporary        = errors.New("temporary failure")

	// ErrRetrievalUnavailable means both retrieval channels failed; there is
	// nothing to fuse and the query cannot be answered.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrGenerationFailed means retrieval succeeded but the answer could not
	// be synthesized. Callers may still show the retrieved sources.
	ErrGenerationFailed = errors.New("answer generation failed")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
