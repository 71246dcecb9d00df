package store

import domainerrors "github.com/listenupapp/listenup-align/internal/errors"

// Sentinel errors. They carry domain codes so callers can match them with
// errors.Is against either these values or the domain sentinels.
var (
	ErrNotFound      = domainerrors.NotFound("resource not found")
	ErrAlreadyExists = domainerrors.AlreadyExists("resource already exists")
)
