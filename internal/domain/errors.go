package domain

import "errors"

// Sentinel errors shared across the store, scheduler, pipeline, and review
// surfaces. Callers classify failures with errors.Is and wrap with context.
var (
	// ErrNotFound signals a lookup, update, or delete that matched nothing.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateName signals a folder name that already exists.
	ErrDuplicateName = errors.New("duplicate name")

	// ErrRootImmutable rejects rename, reparent, or delete of the root folder.
	ErrRootImmutable = errors.New("root folder is locked")

	// ErrFolderNotEmpty rejects a non-recursive delete of a folder that still
	// holds cards or sub-folders.
	ErrFolderNotEmpty = errors.New("folder not empty")

	// ErrCycle rejects a reparent that would make a folder its own ancestor.
	ErrCycle = errors.New("folder cycle")

	// Scheduler failures.
	ErrInvalidScore         = errors.New("invalid score")
	ErrInvalidConfiguration = errors.New("invalid scheduler configuration")
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")

	// Capture pipeline input failures.
	ErrEmptySource        = errors.New("empty source")
	ErrSourceUnavailable  = errors.New("source unavailable")
	ErrUnrecognizedOption = errors.New("unrecognized option")

	// Generation capability failures.
	ErrMissingCredential   = errors.New("missing credential")
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrNetworkFailure      = errors.New("network failure")
	ErrMalformedResponse   = errors.New("malformed response")

	// Review driver failures.
	ErrInvalidCommand = errors.New("invalid command")
)
