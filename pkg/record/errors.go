package record

import "errors"

// ErrNotRecord indicates valid JSON that is not an object.
var ErrNotRecord = errors.New("json value is not an object")
