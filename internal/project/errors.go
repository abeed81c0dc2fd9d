package project

import "errors"

// Sentinel errors for startup validation failures. Commands match on these
// with errors.Is to map them to exit codes; none of them occur after a watch
// session is active.
var (
	// ErrInvalidOutfileName indicates the output file name fails naming rules.
	ErrInvalidOutfileName = errors.New("invalid output file name")

	// ErrSourceNotFound indicates the source path does not reference an
	// existing regular file.
	ErrSourceNotFound = errors.New("source file not found")

	// ErrOutputDirInvalid indicates the output directory does not exist and
	// could not be created.
	ErrOutputDirInvalid = errors.New("invalid output directory")
)
