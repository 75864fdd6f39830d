package cart

import (
	"fmt"

	"furniture-store/internal/model"
)

// QuantityExceededError reports units dropped when a merge pushed a line past the cap.
// The line itself was still saved at the cap.
type QuantityExceededError struct {
	Key      model.LineKey
	Rejected int
}

func (e *QuantityExceededError) Error() string {
	return fmt.Sprintf("%s: %d unit(s) of %s not added", model.ErrQuantityExceeded.Message, e.Rejected, e.Key)
}

func (e *QuantityExceededError) Unwrap() error {
	return model.ErrQuantityExceeded
}
