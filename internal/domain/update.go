package domain

// UpdateHandler applies update packages to one managed component. The
// rollout engine validates the package with every registered handler
// before any handler applies it, applies in registration order, and on
// failure rolls back every handler, including those that succeeded.
type UpdateHandler interface {
	// ValidateUpdate checks an update package before anything applies.
	ValidateUpdate(packagePath string) error

	// HandleUpdate applies the update package.
	HandleUpdate(packagePath string, version string) error

	// RollbackUpdate restores the previous version.
	RollbackUpdate() error
}

// HealthCheck verifies the system after an update. All registered checks
// must report healthy for the update to be considered successful; the
// first failure or error short-circuits to unhealthy.
type HealthCheck interface {
	CheckHealth() (bool, error)
}

// TelemetryReporter pushes the active phase's monitored metric names
// toward the external observability pipeline.
type TelemetryReporter interface {
	ReportMetrics(metrics []string) error
}
