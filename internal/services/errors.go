package services

import (
	"errors"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

var (
	// ErrConcurrentUpdate means the stored schedule changed after it was read.
	ErrConcurrentUpdate = errors.New("schedule was modified concurrently")
	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("not found")
)

func hasErrorCode(err error, code string) bool {
	var azErr *azcore.ResponseError
	return errors.As(err, &azErr) && azErr.ErrorCode == code
}

func hasStatus(err error, status int) bool {
	var azErr *azcore.ResponseError
	return errors.As(err, &azErr) && azErr.StatusCode == status
}

func isNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}
