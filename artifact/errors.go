package artifact

import (
	"fmt"

	"github.com/hupe1980/llmflow/core"
)

var (
	// ErrNotFound is returned when no artifact exists for the given name.
	ErrNotFound = core.ErrNotFound

	// ErrInvalidPath is returned by the file store for absolute names or
	// names escaping the root via "..".
	ErrInvalidPath = fmt.Errorf("invalid artifact path")
)
