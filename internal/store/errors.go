package store

import (
	"github.com/xtxerr/pulse/internal/errors"
)

var (
	ErrClosed      = errors.ErrStoreClosed
	ErrUnavailable = errors.ErrStoreUnavailable
	ErrNotFound    = errors.ErrEventNotFound
)
