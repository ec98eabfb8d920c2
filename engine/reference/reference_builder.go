package reference

import "go.uber.org/zap"

// ManagerBuilderOption is a functional option for configuring a Manager during construction.
type ManagerBuilderOption func(*manager)

// WithLogger sets the logger used to report invalid owners.
//
// Parameters:
//   - logger: the zap logger
//
// Returns:
//   - ManagerBuilderOption: functional option to set the logger
func WithLogger(logger *zap.Logger) ManagerBuilderOption {
	return func(m *manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}
