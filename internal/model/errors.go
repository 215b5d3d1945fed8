package model

import "errors"

// Error classes surfaced by the engine. Concrete errors wrap one of these so
// callers can branch with errors.Is.
var (
	// ErrConfiguration reports an unknown strategy name or an out-of-domain
	// hyperparameter.
	ErrConfiguration = errors.New("configuration error")
	// ErrShape reports a malformed dataset or an input longer than the
	// register file.
	ErrShape = errors.New("shape error")
	// ErrInvariant reports state that the engine refuses to continue from,
	// such as a population size mismatch on resume.
	ErrInvariant = errors.New("invariant violation")
	// ErrSnapshotIO reports a snapshot that could not be read or written.
	ErrSnapshotIO = errors.New("snapshot i/o error")
)
