// Package tablestore implements the metadata registry at the heart of the
// upload workflow: a small set of named tables holding uniquely-named,
// uid-tagged, append-only items.
//
// The store is deliberately schema-light. Its job is cross-referencing a
// handful of controlled vocabularies (acquisition sites, procedure groups,
// surgeons, registered users) against append-only fact tables (subjects,
// image hashes), so a key-value registry with foreign-key-by-uid semantics
// is sufficient. It runs single-writer, single-process; the authoritative
// copy lives in the remote repository and is synchronized by the session
// layer.
package tablestore

import (
	"fmt"
	"slices"
	"time"

	"github.com/surgtrack/curator/internal/uid"
)

// Well-known tables of the default schema.
const (
	TableUsers       = "USERS"
	TableSites       = "ACQUISITION_SITES"
	TableGroups      = "GROUPS"
	TableSurgeons    = "SURGEONS"
	TableSubjects    = "SUBJECTS"
	TableImageHashes = "IMAGE_HASHES"
)

// Extra columns used by the default schema.
const (
	ColRole       = "ROLE"
	ColSite       = "ACQUISITION_SITE"
	ColGroup      = "GROUP"
	ColSubjectUID = "SUBJECT_UID"
)

// RoleAdmin marks a registered user as privileged for schema and bootstrap
// operations.
const RoleAdmin = "ADMIN"

// TableDef declares a table and its extra columns.
type TableDef struct {
	Name         string
	ExtraColumns []string
}

// DefaultSchema returns the tables bootstrapped into a brand-new store.
func DefaultSchema() []TableDef {
	return []TableDef{
		{Name: TableUsers, ExtraColumns: []string{ColRole}},
		{Name: TableSites},
		{Name: TableGroups},
		{Name: TableSurgeons},
		{Name: TableSubjects, ExtraColumns: []string{ColSite, ColGroup}},
		{Name: TableImageHashes, ExtraColumns: []string{ColSubjectUID}},
	}
}

// InsertStatus tags the outcome of AddItem.
type InsertStatus int

const (
	// StatusInserted means a new row was appended.
	StatusInserted InsertStatus = iota
	// StatusAlreadyExists means an item with that name (case-insensitive)
	// was already present. This is an expected condition during idempotent
	// retries, not an error.
	StatusAlreadyExists
)

// InsertResult is the outcome of an insertion attempt. Soft conflicts are
// reported here; programmer errors (missing table, column mismatch, bad uid)
// come back as errors instead.
type InsertResult struct {
	Status  InsertStatus
	UID     string
	Message string
}

// Inserted reports whether a new row was appended.
func (r InsertResult) Inserted() bool {
	return r.Status == StatusInserted
}

// ItemSpec carries the optional parts of an insertion.
type ItemSpec struct {
	// UID is generated when empty; a supplied value is validated and
	// checked for store-wide uniqueness.
	UID string
	// Extra must hold exactly one value per declared extra column.
	Extra map[string]any
	// Actor is the uid of the acting principal, recorded as CREATED_BY.
	Actor string
}

// Store is the in-memory registry of named tables.
type Store struct {
	meta   Metadata
	tables map[string]*Table
	order  []string
	gen    *uid.Generator
	now    func() time.Time
}

// New creates an empty store owned by the given principal uid.
func New(gen *uid.Generator, createdBy string) *Store {
	now := time.Now()
	return &Store{
		meta: Metadata{
			Created:           now,
			LastModified:      now,
			CreatedBy:         createdBy,
			LastModifiedBy:    createdBy,
			TableExtraColumns: map[string][]string{},
		},
		tables: map[string]*Table{},
		gen:    gen,
		now:    time.Now,
	}
}

// TableExists reports whether a table with the given name exists.
func (s *Store) TableExists(name string) bool {
	_, ok := s.tables[Fold(name)]
	return ok
}

// ItemExists reports whether the table holds an item with the given name,
// compared case-insensitively.
func (s *Store) ItemExists(table, item string) bool {
	t, ok := s.tables[Fold(table)]
	if !ok {
		return false
	}
	return t.find(item) != nil
}

// AddTable creates a new table and registers its extra columns in the store
// metadata. The extra-column set is immutable afterwards.
func (s *Store) AddTable(name string, extraColumns []string, actor string) error {
	folded := Fold(name)
	if folded == "" {
		return ErrTableNameEmpty
	}
	if s.TableExists(folded) {
		return &TableExistsError{Table: folded}
	}
	cols := make([]string, len(extraColumns))
	for i, c := range extraColumns {
		cols[i] = Fold(c)
	}
	if err := s.meta.registerExtraColumns(folded, cols); err != nil {
		return err
	}
	s.tables[folded] = &Table{Name: folded, ExtraColumns: cols}
	s.order = append(s.order, folded)
	s.meta.touch(actor, s.now())
	return nil
}

// AddItem appends a new item to the table. An existing item with the same
// name (case-insensitive) is a soft conflict returned in the result; every
// other failure mode is an error and leaves the store unchanged.
func (s *Store) AddItem(table, name string, spec ItemSpec) (InsertResult, error) {
	t, ok := s.tables[Fold(table)]
	if !ok {
		return InsertResult{}, &TableNotFoundError{Table: Fold(table)}
	}
	folded := Fold(name)
	if folded == "" {
		return InsertResult{}, ErrItemNameEmpty
	}
	if existing := t.find(folded); existing != nil {
		return InsertResult{
			Status:  StatusAlreadyExists,
			UID:     existing.UID,
			Message: fmt.Sprintf("item %s already exists in table %s", folded, t.Name),
		}, nil
	}

	extra, err := s.checkExtra(t, spec.Extra)
	if err != nil {
		return InsertResult{}, err
	}

	id := spec.UID
	if id == "" {
		id = s.gen.Generate()
	} else if !uid.IsValid(id) {
		return InsertResult{}, fmt.Errorf("%w: %q", ErrInvalidUID, id)
	}
	if owner, in := s.lookupUID(id); owner != nil {
		return InsertResult{}, &DuplicateUIDError{UID: id, Table: in}
	}

	now := s.now()
	t.items = append(t.items, &Item{
		Name:      folded,
		UID:       id,
		Created:   now,
		CreatedBy: spec.Actor,
		Extra:     extra,
	})
	s.meta.touch(spec.Actor, now)
	return InsertResult{
		Status:  StatusInserted,
		UID:     id,
		Message: fmt.Sprintf("item %s added to table %s", folded, t.Name),
	}, nil
}

// checkExtra validates that the supplied values exactly cover the table's
// declared extra columns and returns them keyed by folded column name.
func (s *Store) checkExtra(t *Table, values map[string]any) (map[string]any, error) {
	supplied := make(map[string]any, len(values))
	for k, v := range values {
		supplied[Fold(k)] = v
	}

	var missing, unexpected []string
	for _, col := range t.ExtraColumns {
		if _, ok := supplied[col]; !ok {
			missing = append(missing, col)
		}
	}
	for k := range supplied {
		if !slices.Contains(t.ExtraColumns, k) {
			unexpected = append(unexpected, k)
		}
	}
	if len(missing) > 0 || len(unexpected) > 0 {
		slices.Sort(unexpected)
		return nil, &ExtraColumnError{Table: t.Name, Missing: missing, Unexpected: unexpected}
	}
	if len(supplied) == 0 {
		return nil, nil
	}
	return supplied, nil
}

// GetUID returns the uid of the named item. This is the lookup path that
// turns human-readable names into stable foreign-key references.
func (s *Store) GetUID(table, item string) (string, error) {
	t, ok := s.tables[Fold(table)]
	if !ok {
		return "", &TableNotFoundError{Table: Fold(table)}
	}
	it := t.find(item)
	if it == nil {
		return "", &ItemNotFoundError{Table: t.Name, Key: Fold(item)}
	}
	return it.UID, nil
}

// GetName returns the stored (folded) name of the item with the given uid.
func (s *Store) GetName(table, id string) (string, error) {
	t, ok := s.tables[Fold(table)]
	if !ok {
		return "", &TableNotFoundError{Table: Fold(table)}
	}
	it := t.findUID(id)
	if it == nil {
		return "", &ItemNotFoundError{Table: t.Name, Key: id}
	}
	return it.Name, nil
}

// GetItem returns a copy of the named item.
func (s *Store) GetItem(table, item string) (*Item, error) {
	t, ok := s.tables[Fold(table)]
	if !ok {
		return nil, &TableNotFoundError{Table: Fold(table)}
	}
	it := t.find(item)
	if it == nil {
		return nil, &ItemNotFoundError{Table: t.Name, Key: Fold(item)}
	}
	return it.Clone(), nil
}

// ListItems returns the item names of a table in insertion order.
func (s *Store) ListItems(table string) ([]string, error) {
	t, ok := s.tables[Fold(table)]
	if !ok {
		return nil, &TableNotFoundError{Table: Fold(table)}
	}
	names := make([]string, len(t.items))
	for i, it := range t.items {
		names[i] = it.Name
	}
	return names, nil
}

// ListTables returns all table names, sorted.
func (s *Store) ListTables() []string {
	names := slices.Clone(s.order)
	slices.Sort(names)
	return names
}

// ExtraColumns returns the declared extra columns of a table.
func (s *Store) ExtraColumns(table string) ([]string, error) {
	t, ok := s.tables[Fold(table)]
	if !ok {
		return nil, &TableNotFoundError{Table: Fold(table)}
	}
	return slices.Clone(t.ExtraColumns), nil
}

// Metadata returns a copy of the store-wide metadata record.
func (s *Store) Metadata() Metadata {
	return s.meta.clone()
}

// IsRegisteredUser reports whether the uid belongs to an item in the USERS
// table.
func (s *Store) IsRegisteredUser(actor string) bool {
	t, ok := s.tables[TableUsers]
	if !ok {
		return false
	}
	return t.findUID(actor) != nil
}

// IsPrivilegedUser reports whether the uid belongs to a registered user with
// the admin role.
func (s *Store) IsPrivilegedUser(actor string) bool {
	t, ok := s.tables[TableUsers]
	if !ok {
		return false
	}
	it := t.findUID(actor)
	if it == nil {
		return false
	}
	role, _ := it.Extra[ColRole].(string)
	return Fold(role) == RoleAdmin
}

// lookupUID scans every table for the uid and returns the owning item and
// table name, or nil.
func (s *Store) lookupUID(id string) (*Item, string) {
	for _, name := range s.order {
		if it := s.tables[name].findUID(id); it != nil {
			return it, name
		}
	}
	return nil, ""
}
