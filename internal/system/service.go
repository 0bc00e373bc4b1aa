// Package system defines the lifecycle contract for background components.
package system

import "context"

// Service is a lifecycle-managed component (pollers, dispatchers). The
// runtime starts and stops services deterministically at boot and shutdown.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
