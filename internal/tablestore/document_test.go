package tablestore

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/surgtrack/curator/internal/uid"
)

func TestDocumentRoundTrip(t *testing.T) {
	s, actor := newTestStore(t)
	if err := s.AddTable("SUBJECTS", []string{"ACQUISITION_SITE", "GROUP"}, actor); err != nil {
		t.Fatalf("AddTable failed: %v", err)
	}
	if err := s.AddTable("GROUPS", nil, actor); err != nil {
		t.Fatalf("AddTable failed: %v", err)
	}
	if _, err := s.AddItem("GROUPS", "Knee_Arthroscopy", ItemSpec{Actor: actor}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if _, err := s.AddItem("SUBJECTS", "S001", ItemSpec{
		Extra: map[string]any{"ACQUISITION_SITE": "SITE_A", "GROUP": "KNEE_ARTHROSCOPY"},
		Actor: actor,
	}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	data, err := s.MarshalDocument()
	if err != nil {
		t.Fatalf("MarshalDocument failed: %v", err)
	}

	loaded := New(uid.New("loader"), actor)
	if err := loaded.Load(data); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Serialization is lossless: re-marshaling the loaded store reproduces
	// byte-identical content.
	again, err := loaded.MarshalDocument()
	if err != nil {
		t.Fatalf("MarshalDocument after Load failed: %v", err)
	}
	if !bytes.Equal(data, again) {
		t.Errorf("round trip changed the document:\nbefore: %s\nafter:  %s", data, again)
	}

	if diff := cmp.Diff(s.ListTables(), loaded.ListTables()); diff != "" {
		t.Errorf("table list mismatch (-orig +loaded):\n%s", diff)
	}
	origUID, err := s.GetUID("SUBJECTS", "S001")
	if err != nil {
		t.Fatalf("GetUID failed: %v", err)
	}
	loadedUID, err := loaded.GetUID("SUBJECTS", "S001")
	if err != nil {
		t.Fatalf("GetUID on loaded store failed: %v", err)
	}
	if origUID != loadedUID {
		t.Errorf("loaded uid %q != original %q", loadedUID, origUID)
	}
	meta := loaded.Metadata()
	if diff := cmp.Diff(s.Metadata().TableExtraColumns, meta.TableExtraColumns); diff != "" {
		t.Errorf("metadata registry mismatch (-orig +loaded):\n%s", diff)
	}
}

func TestLoadReconcilesMissingColumns(t *testing.T) {
	// An older document whose SUBJECTS rows predate the GROUP column: the
	// metadata registry declares it, so loading adds it back as null.
	gen := uid.New("reconcile")
	id := gen.Generate()
	doc := Document{
		Metadata: DocumentMetadata{
			Created:      "2026-01-05T10:00:00Z",
			LastModified: "2026-01-05T10:00:00Z",
			CreatedBy:    id,
			TableExtraColumns: map[string][]string{
				"SUBJECTS": {"ACQUISITION_SITE", "GROUP"},
			},
		},
		Tables: map[string][]map[string]any{
			"SUBJECTS": {{
				"NAME":              "S001",
				"UID":               id,
				"CREATED_DATE_TIME": "2026-01-05T10:00:00Z",
				"CREATED_BY":        id,
				"ACQUISITION_SITE":  "SITE_A",
			}},
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal test document: %v", err)
	}

	s := New(gen, id)
	if err := s.Load(data); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	it, err := s.GetItem("SUBJECTS", "S001")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	v, present := it.Extra["GROUP"]
	if !present {
		t.Fatal("reconciled column GROUP missing from loaded item")
	}
	if v != nil {
		t.Errorf("reconciled column GROUP = %v, want nil", v)
	}
	if got := it.Extra["ACQUISITION_SITE"]; got != "SITE_A" {
		t.Errorf("ACQUISITION_SITE = %v, want SITE_A", got)
	}

	// The reconciled column appears (as null) in the next snapshot.
	snap := s.Snapshot()
	row := snap.Tables["SUBJECTS"][0]
	if v, ok := row["GROUP"]; !ok || v != nil {
		t.Errorf("snapshot row GROUP = %v (present=%v), want nil present", v, ok)
	}
}

func TestLoadRepairsMissingTable(t *testing.T) {
	gen := uid.New("repair")
	id := gen.Generate()
	doc := Document{
		Metadata: DocumentMetadata{
			Created:      "2026-01-05T10:00:00Z",
			LastModified: "2026-01-05T10:00:00Z",
			CreatedBy:    id,
			TableExtraColumns: map[string][]string{
				"IMAGE_HASHES": {"SUBJECT_UID"},
			},
		},
		Tables: map[string][]map[string]any{},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal test document: %v", err)
	}
	s := New(gen, id)
	if err := s.Load(data); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !s.TableExists("IMAGE_HASHES") {
		t.Error("registered table IMAGE_HASHES not re-materialized on load")
	}
}

func TestLoadRejectsMalformedRows(t *testing.T) {
	tests := []struct {
		name string
		row  map[string]any
	}{
		{"missing NAME", map[string]any{"UID": "x"}},
		{"numeric NAME", map[string]any{"NAME": 7, "UID": "x"}},
		{"missing UID", map[string]any{"NAME": "A"}},
		{"bad timestamp", map[string]any{"NAME": "A", "UID": "x", "CREATED_DATE_TIME": "yesterday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Document{
				Metadata: DocumentMetadata{TableExtraColumns: map[string][]string{}},
				Tables:   map[string][]map[string]any{"GROUPS": {tt.row}},
			}
			data, err := json.Marshal(doc)
			if err != nil {
				t.Fatalf("marshal test document: %v", err)
			}
			s := New(uid.New("bad"), "")
			if err := s.Load(data); err == nil {
				t.Error("Load accepted a malformed row")
			}
		})
	}
}
