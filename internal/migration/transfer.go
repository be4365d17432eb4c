package migration

import (
	"context"

	"github.com/pingcap/errors"
	"go.uber.org/zap"

	"github.com/specialistvlad/unloadcopy/internal/ctxlog"
	"github.com/specialistvlad/unloadcopy/internal/warehouse"
)

// CreateIfMissing creates Target from the definition of Source when Target
// does not exist yet. Running it twice is harmless.
type CreateIfMissing struct {
	Source DefinitionSource
	Target Creatable
	// Schema and Name are the destination's names, used to rewrite the
	// source definition.
	Schema string
	Name   string
}

// Execute implements task.Task.
func (c *CreateIfMissing) Execute(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With(zap.Stringer("target", c.Target))

	ok, err := c.Target.Exists(ctx)
	if err != nil {
		return err
	}
	if ok {
		logger.Info("Destination already exists, not creating it.")
		return nil
	}

	ddl, err := c.Source.DDL(ctx, c.Schema, c.Name)
	if err != nil {
		return err
	}
	logger.Debug("Creating destination.", zap.String("ddl", ddl))
	if err := c.Target.Create(ctx, ddl); err != nil {
		return err
	}
	logger.Info("Destination created.", zap.Stringer("source", c.Source))
	return nil
}

// Unload exports Source into its staging slot.
type Unload struct {
	Source      Unloader
	Slot        Slot
	Credentials warehouse.Credentials
}

// Execute implements task.Task.
func (u *Unload) Execute(ctx context.Context) error {
	key, err := u.Slot.Key(ctx)
	if err != nil {
		return errors.Annotatef(err, "no data key for %s", u.Source)
	}
	return u.Source.Unload(ctx, warehouse.UnloadSpec{
		DataPrefix:  u.Slot.DataPrefix(),
		Credentials: u.Credentials,
		Key:         key,
	})
}

// Copy loads the files staged for a table into Target.
type Copy struct {
	Target      Copier
	Slot        Slot
	Credentials warehouse.Credentials
	ExplicitIDs bool
}

// Execute implements task.Task.
func (c *Copy) Execute(ctx context.Context) error {
	key, err := c.Slot.Key(ctx)
	if err != nil {
		return errors.Annotatef(err, "no data key for %s", c.Target)
	}
	return c.Target.Copy(ctx, warehouse.CopySpec{
		ManifestPath: c.Slot.ManifestPath(),
		Credentials:  c.Credentials,
		Key:          key,
		ExplicitIDs:  c.ExplicitIDs,
	})
}

// Cleanup removes everything staged for a table.
type Cleanup struct {
	Store Deleter
	Slot  Slot
}

// Execute implements task.Task.
func (c *Cleanup) Execute(ctx context.Context) error {
	loc := c.Slot.Location()
	n, err := c.Store.DeletePrefix(ctx, loc)
	if err != nil {
		return errors.Annotatef(err, "cleanup of %s incomplete after %d deletions", loc, n)
	}
	ctxlog.FromContext(ctx).Info("Staging area cleaned up.", zap.Stringer("location", loc), zap.Int("objects", n))
	return nil
}
