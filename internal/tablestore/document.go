// Serialization of the store to and from its persisted document form.

package tablestore

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// timeLayout is the timestamp encoding used in persisted documents.
const timeLayout = time.RFC3339Nano

// Document is the persisted shape of the store: a metadata record plus each
// table's rows. Row records carry every column, nulls included, so column
// alignment stays stable across reads.
type Document struct {
	Metadata DocumentMetadata            `json:"metadata"`
	Tables   map[string][]map[string]any `json:"tables"`
}

// DocumentMetadata mirrors Metadata with the persisted key casing.
type DocumentMetadata struct {
	Created           string              `json:"CREATED"`
	LastModified      string              `json:"LAST_MODIFIED"`
	CreatedBy         string              `json:"CREATED_BY"`
	LastModifiedBy    string              `json:"LAST_MODIFIED_BY"`
	TableExtraColumns map[string][]string `json:"TABLE_EXTRA_COLUMNS"`
}

// Snapshot renders the current store contents as a document.
func (s *Store) Snapshot() *Document {
	doc := &Document{
		Metadata: DocumentMetadata{
			Created:           formatTime(s.meta.Created),
			LastModified:      formatTime(s.meta.LastModified),
			CreatedBy:         s.meta.CreatedBy,
			LastModifiedBy:    s.meta.LastModifiedBy,
			TableExtraColumns: make(map[string][]string, len(s.meta.TableExtraColumns)),
		},
		Tables: make(map[string][]map[string]any, len(s.order)),
	}
	for k, v := range s.meta.TableExtraColumns {
		doc.Metadata.TableExtraColumns[k] = slices.Clone(v)
	}
	for _, name := range s.order {
		t := s.tables[name]
		rows := make([]map[string]any, 0, len(t.items))
		for _, it := range t.items {
			row := map[string]any{
				ColName:      it.Name,
				ColUID:       it.UID,
				ColCreated:   formatTime(it.Created),
				ColCreatedBy: it.CreatedBy,
			}
			for _, col := range t.ExtraColumns {
				row[col] = it.Extra[col] // nil when absent
			}
			rows = append(rows, row)
		}
		doc.Tables[name] = rows
	}
	return doc
}

// MarshalDocument serializes the store to its persisted JSON form.
func (s *Store) MarshalDocument() ([]byte, error) {
	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal store document: %w", err)
	}
	return append(data, '\n'), nil
}

// Load replaces the store contents wholesale from a serialized document.
func (s *Store) Load(data []byte) error {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse store document: %w", err)
	}
	return s.LoadDocument(&doc)
}

// LoadDocument replaces the store contents wholesale from a document and
// reconciles each table against the metadata registry: extra columns
// declared there but missing from an older document's rows are added with
// null values, so the schema can grow without invalidating prior documents.
func (s *Store) LoadDocument(doc *Document) error {
	meta, err := metadataFromDocument(&doc.Metadata)
	if err != nil {
		return err
	}

	tables := make(map[string]*Table, len(doc.Tables))
	for name, rows := range doc.Tables {
		folded := Fold(name)
		t := &Table{Name: folded, ExtraColumns: foldAll(meta.TableExtraColumns[folded])}
		for i, row := range rows {
			it, err := itemFromRow(row, t.ExtraColumns)
			if err != nil {
				return fmt.Errorf("table %s row %d: %w", folded, i, err)
			}
			t.items = append(t.items, it)
		}
		tables[folded] = t
	}

	// Tables registered in metadata but absent from the document are
	// re-materialized empty.
	for name, cols := range meta.TableExtraColumns {
		folded := Fold(name)
		if _, ok := tables[folded]; !ok {
			tables[folded] = &Table{Name: folded, ExtraColumns: foldAll(cols)}
		}
	}

	order := make([]string, 0, len(tables))
	for name := range tables {
		order = append(order, name)
	}
	slices.Sort(order)

	s.meta = meta
	s.tables = tables
	s.order = order
	return nil
}

func metadataFromDocument(dm *DocumentMetadata) (Metadata, error) {
	created, err := parseTime(dm.Created)
	if err != nil {
		return Metadata{}, fmt.Errorf("metadata CREATED: %w", err)
	}
	modified, err := parseTime(dm.LastModified)
	if err != nil {
		return Metadata{}, fmt.Errorf("metadata LAST_MODIFIED: %w", err)
	}
	meta := Metadata{
		Created:           created,
		LastModified:      modified,
		CreatedBy:         dm.CreatedBy,
		LastModifiedBy:    dm.LastModifiedBy,
		TableExtraColumns: make(map[string][]string, len(dm.TableExtraColumns)),
	}
	for name, cols := range dm.TableExtraColumns {
		meta.TableExtraColumns[Fold(name)] = foldAll(cols)
	}
	return meta, nil
}

func itemFromRow(row map[string]any, extraColumns []string) (*Item, error) {
	name, ok := row[ColName].(string)
	if !ok || name == "" {
		return nil, fmt.Errorf("%s must be a non-empty string", ColName)
	}
	id, ok := row[ColUID].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("%s must be a non-empty string", ColUID)
	}
	createdRaw, _ := row[ColCreated].(string)
	created, err := parseTime(createdRaw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ColCreated, err)
	}
	createdBy, _ := row[ColCreatedBy].(string)

	it := &Item{
		Name:      Fold(name),
		UID:       id,
		Created:   created,
		CreatedBy: createdBy,
	}
	if len(extraColumns) > 0 {
		it.Extra = make(map[string]any, len(extraColumns))
		for _, col := range extraColumns {
			it.Extra[col] = row[col] // missing columns materialize as nil
		}
	}
	return it, nil
}

func foldAll(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = Fold(c)
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
