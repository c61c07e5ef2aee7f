package client

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/vehiclecheck/internal/common"
)

var (
	ErrUnavailable = errors.New("server unavailable")
	// ErrUnauthorized matches common.ErrorUnauthorized with errors.Is.
	ErrUnauthorized          = fmt.Errorf("%w by server", common.ErrorUnauthorized)
	ErrLocalDataNotAvailable = errors.New("local data unavailable")
)
