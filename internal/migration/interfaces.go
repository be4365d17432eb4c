package migration

import (
	"context"
	"fmt"

	"github.com/specialistvlad/unloadcopy/internal/staging"
	"github.com/specialistvlad/unloadcopy/internal/warehouse"
)

// Pinger is a resource whose cluster can be reached.
type Pinger interface {
	fmt.Stringer
	Ping(ctx context.Context) error
}

// Checker is a resource that may or may not exist.
type Checker interface {
	fmt.Stringer
	Exists(ctx context.Context) (bool, error)
}

// DefinitionSource produces a CREATE statement for a copy of itself.
type DefinitionSource interface {
	fmt.Stringer
	DDL(ctx context.Context, schema, name string) (string, error)
}

// Creatable is a table that can be created from a definition.
type Creatable interface {
	Checker
	Create(ctx context.Context, ddl string) error
}

// Unloader exports a table to S3.
type Unloader interface {
	fmt.Stringer
	Unload(ctx context.Context, spec warehouse.UnloadSpec) error
}

// Copier loads staged files into a table.
type Copier interface {
	fmt.Stringer
	Copy(ctx context.Context, spec warehouse.CopySpec) error
}

// Table is everything a warehouse table offers the tasks of this package.
type Table interface {
	Pinger
	Creatable
	DefinitionSource
	Unloader
	Copier
}

// Slot is the staging location and data key of one table.
type Slot interface {
	Location() staging.Location
	DataPrefix() string
	ManifestPath() string
	Key(ctx context.Context) (string, error)
}

// Deleter removes staged objects.
type Deleter interface {
	DeletePrefix(ctx context.Context, loc staging.Location) (int, error)
}

var (
	_ Table   = (*warehouse.Table)(nil)
	_ Slot    = (*staging.Table)(nil)
	_ Deleter = (*staging.Store)(nil)
)
