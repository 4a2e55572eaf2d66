package services

import "errors"

// Error taxonomy of the ingestion pipeline. Record- and batch-level errors are
// recovered locally and only surface in logs and counters; ErrFatalSource
// aborts the run.
var (
	// ErrInvalidRecord: a source row failed structural validation. The row is skipped.
	ErrInvalidRecord = errors.New("invalid record")
	// ErrFetch: the remote image could not be retrieved (network, status, timeout, size).
	ErrFetch = errors.New("fetch failed")
	// ErrTransform: the fetched bytes are not a decodable raster image.
	ErrTransform = errors.New("transform failed")
	// ErrBatchWrite: the store rejected the whole batch submission.
	ErrBatchWrite = errors.New("batch write failed")
	// ErrFatalSource: the record source could not be opened or read.
	ErrFatalSource = errors.New("record source failed")
	// ErrNotFound: the viewer asked for an identifier the store does not hold.
	ErrNotFound = errors.New("not found")
)
