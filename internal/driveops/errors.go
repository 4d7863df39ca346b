package driveops

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrInvalidResource  = errors.New("driveops: response is missing required fields")
	ErrIsFolder         = errors.New("driveops: is a folder")
	ErrReadOnly         = errors.New("driveops: drive is read-only")
	ErrUnknownProvider  = errors.New("driveops: no provider registered")
	ErrUnsupportedGlob  = errors.New("driveops: wildcards are only supported in the last path segment")
	ErrRootFolder       = errors.New("driveops: refusing to delete the drive root")
	ErrNothingToProcess = errors.New("driveops: no files matched")
	ErrCopyIntoSelf     = errors.New("driveops: cannot copy a folder into itself")
	ErrUnsafeName       = errors.New("driveops: listed name is not a single path segment")
)

// TransportError reports a failure while streaming file bytes. Partial, when
// set, is a temporary file holding whatever was written before the failure;
// the caller removes it.
type TransportError struct {
	Op      string
	Path    string
	Partial string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
