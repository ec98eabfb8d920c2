package material

import "errors"

// ErrTemplateNotFound is returned when no template with a generator matches a requested name or type.
var ErrTemplateNotFound = errors.New("material template not found")
