package tablestore

import (
	"slices"
	"time"
)

// Metadata is the store-wide record tracking provenance and the registry of
// each table's extra columns. The registry is what lets a newer schema
// re-materialize columns missing from an older persisted document.
type Metadata struct {
	Created           time.Time
	LastModified      time.Time
	CreatedBy         string
	LastModifiedBy    string
	TableExtraColumns map[string][]string
}

// registerExtraColumns records a table's extra-column declaration. A table
// can be declared exactly once for its lifetime.
func (m *Metadata) registerExtraColumns(table string, cols []string) error {
	if _, ok := m.TableExtraColumns[table]; ok {
		return &ExtraColumnsRedeclaredError{Table: table}
	}
	m.TableExtraColumns[table] = slices.Clone(cols)
	return nil
}

// touch stamps the metadata after a mutation.
func (m *Metadata) touch(actor string, now time.Time) {
	m.LastModified = now
	if actor != "" {
		m.LastModifiedBy = actor
	}
}

// clone returns a deep copy of the metadata.
func (m *Metadata) clone() Metadata {
	c := *m
	c.TableExtraColumns = make(map[string][]string, len(m.TableExtraColumns))
	for k, v := range m.TableExtraColumns {
		c.TableExtraColumns[k] = slices.Clone(v)
	}
	return c
}
