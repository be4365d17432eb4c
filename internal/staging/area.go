package staging

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

const manifestName = "manifest"

// Area is the staging root of one run. Every run writes under its own
// identifier so concurrent or repeated runs never share objects.
type Area struct {
	root  Location
	runID string
	keys  KeyProvider
}

// NewArea creates the staging area of a new run below root.
func NewArea(root Location, keys KeyProvider) *Area {
	return &Area{root: root, runID: uuid.NewString(), keys: keys}
}

// RunID returns the identifier of this run.
func (a *Area) RunID() string { return a.runID }

// Location returns the run's root location.
func (a *Area) Location() Location { return a.root.Join(a.runID) }

// Table returns the staging slot of one table.
func (a *Area) Table(schema, table string) *Table {
	return &Table{
		loc:  a.Location().Join(schema + "." + table),
		keys: a.keys,
	}
}

// Table is where one table's data is staged and the key encrypting it.
type Table struct {
	loc  Location
	keys KeyProvider

	once sync.Once
	key  string
	err  error
}

// Location returns the prefix holding the table's files.
func (t *Table) Location() Location { return t.loc }

// DataPrefix is the s3:// prefix passed to UNLOAD.
func (t *Table) DataPrefix() string { return t.loc.String() }

// ManifestPath is the s3:// URL of the manifest UNLOAD writes and COPY reads.
func (t *Table) ManifestPath() string { return t.loc.String() + manifestName }

// Key returns the table's data key, generating it on first use. The unload
// and the copy of a table must use the same key.
func (t *Table) Key(ctx context.Context) (string, error) {
	t.once.Do(func() {
		t.key, t.err = t.keys.DataKey(ctx)
	})
	return t.key, t.err
}
