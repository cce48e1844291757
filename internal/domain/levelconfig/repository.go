package levelconfig

import (
	"context"
)

// Repository defines the interface for level configuration access
type Repository interface {
	// GetByLevel returns the configuration for one level.
	// ErrConfigurationMissing if the level has no row.
	GetByLevel(ctx context.Context, level int) (*Config, error)

	// GetAll returns every configured level ordered ascending
	GetAll(ctx context.Context) ([]*Config, error)
}
