package tablestore

import (
	"strings"
	"time"
)

// Default columns carried by every item, in serialization order.
const (
	ColName      = "NAME"
	ColUID       = "UID"
	ColCreated   = "CREATED_DATE_TIME"
	ColCreatedBy = "CREATED_BY"
)

// DefaultColumns returns the default column set shared by all tables.
func DefaultColumns() []string {
	return []string{ColName, ColUID, ColCreated, ColCreatedBy}
}

// Fold normalizes a table or item name for case-insensitive comparison.
// Names are stored folded, so every lookup path compares folded values.
func Fold(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Item is a single row. Items are append-only: the store never updates or
// deletes them, so the remote history stays auditable.
type Item struct {
	Name      string
	UID       string
	Created   time.Time
	CreatedBy string
	// Extra holds one value per declared extra column. A declared column
	// with no value is present with a nil entry to keep alignment stable.
	Extra map[string]any
}

// Clone returns a deep copy of the item.
func (it *Item) Clone() *Item {
	c := *it
	if it.Extra != nil {
		c.Extra = make(map[string]any, len(it.Extra))
		for k, v := range it.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// Table is a named relation holding uniquely-named items. Its extra-column
// set is fixed at creation time.
type Table struct {
	Name         string
	ExtraColumns []string
	items        []*Item
}

// Lookups are linear scans: the controlled vocabularies and fact tables this
// store holds top out at low thousands of rows.

func (t *Table) find(name string) *Item {
	folded := Fold(name)
	for _, it := range t.items {
		if it.Name == folded {
			return it
		}
	}
	return nil
}

func (t *Table) findUID(id string) *Item {
	for _, it := range t.items {
		if it.UID == id {
			return it
		}
	}
	return nil
}

// Len returns the number of items in the table.
func (t *Table) Len() int {
	return len(t.items)
}
