// Package driveops performs file operations against drives: paginated
// listings, downloads into local temporary files, uploads, deletes, and the
// copy and remove orchestration built on top of them.
//
// TransferManager picks a Provider for each drive from a table keyed by
// provider id. Local drives are served straight from disk; every other
// provider goes through the Files API, refreshing the drive's OAuth2 token
// before each request.
//
// Copier and Remover run strictly one file at a time in listing order. A
// failure on one file is recorded in the Report and the batch continues;
// a failure to list a folder aborts the operation.
package driveops
