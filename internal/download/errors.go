package download

// Precondition faults are rejected synchronously and never retried; transfer
// faults carry the cause of a failed or corrupt transfer. Each gets a typed
// error plus an Is* predicate so the HTTP layer can map status codes without
// parsing prose.

type missingURLError struct{ id string }

func (e missingURLError) Error() string { return "no download URL for artifact: " + e.id }

func ErrMissingURL(id string) error { return missingURLError{id: id} }

func IsMissingURL(err error) bool {
	_, ok := err.(missingURLError)
	return ok
}

type alreadyLocalError struct{ id string }

func (e alreadyLocalError) Error() string { return "artifact already local: " + e.id }

func ErrAlreadyLocal(id string) error { return alreadyLocalError{id: id} }

func IsAlreadyLocal(err error) bool {
	_, ok := err.(alreadyLocalError)
	return ok
}

type alreadyDownloadingError struct{ id string }

func (e alreadyDownloadingError) Error() string { return "download already in flight: " + e.id }

func ErrAlreadyDownloading(id string) error { return alreadyDownloadingError{id: id} }

func IsAlreadyDownloading(err error) bool {
	_, ok := err.(alreadyDownloadingError)
	return ok
}

type concurrencyLimitError struct{ limit int }

func (e concurrencyLimitError) Error() string { return "download concurrency limit reached" }

func ErrConcurrencyLimit(limit int) error { return concurrencyLimitError{limit: limit} }

func IsConcurrencyLimit(err error) bool {
	_, ok := err.(concurrencyLimitError)
	return ok
}

type noActiveDownloadError struct{ id string }

func (e noActiveDownloadError) Error() string { return "no active download for artifact: " + e.id }

func ErrNoActiveDownload(id string) error { return noActiveDownloadError{id: id} }

func IsNoActiveDownload(err error) bool {
	_, ok := err.(noActiveDownloadError)
	return ok
}

type transferFailedError struct {
	id    string
	cause error
}

func (e transferFailedError) Error() string { return "transfer failed for " + e.id + ": " + e.cause.Error() }

func (e transferFailedError) Unwrap() error { return e.cause }

func ErrTransferFailed(id string, cause error) error { return transferFailedError{id: id, cause: cause} }

func IsTransferFailed(err error) bool {
	_, ok := err.(transferFailedError)
	return ok
}

type corruptDownloadError struct{ id string }

func (e corruptDownloadError) Error() string { return "downloaded artifact failed verification: " + e.id }

func ErrCorruptDownload(id string) error { return corruptDownloadError{id: id} }

func IsCorruptDownload(err error) bool {
	_, ok := err.(corruptDownloadError)
	return ok
}
