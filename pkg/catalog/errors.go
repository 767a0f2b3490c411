package catalog

import "errors"

var (
	// ErrBadRequest indicates a malformed path, query, or document.
	ErrBadRequest = errors.New("catalog: bad request")

	// ErrNotFound indicates the addressed entry does not exist.
	ErrNotFound = errors.New("catalog: not found")

	// ErrAmbiguous indicates a lookup matched more than one record. The
	// catalog never picks one; this is a data integrity fault.
	ErrAmbiguous = errors.New("catalog: lookup matched multiple records")

	// ErrPermissionDenied indicates the principal lacks the required right.
	ErrPermissionDenied = errors.New("catalog: permission denied")
)
