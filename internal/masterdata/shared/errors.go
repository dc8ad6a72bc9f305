package shared

import (
	"fmt"

	internalShared "github.com/odyssey-erp/custody/internal/shared"
)

var (
	ErrNotFound      = fmt.Errorf("masterdata: %w", internalShared.ErrNotFound)
	ErrRequiredField = internalShared.Userf(internalShared.ErrValidation, "field is required")
)
