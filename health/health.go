// Package health defines the readiness probe contract backing stores
// implement.
package health

import "context"

type ReadinessCheck interface {
	IsReady(ctx context.Context) error
	Name() string
}
