package tablestore

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidUID is returned when a caller-supplied uid fails validation.
	ErrInvalidUID = errors.New("invalid uid")
	// ErrTableNameEmpty is returned for blank table names.
	ErrTableNameEmpty = errors.New("table name is required")
	// ErrItemNameEmpty is returned for blank item names.
	ErrItemNameEmpty = errors.New("item name is required")
)

// TableExistsError reports an attempt to create a table that already exists.
type TableExistsError struct {
	Table string
}

func (e *TableExistsError) Error() string {
	return fmt.Sprintf("table %s already exists", e.Table)
}

// TableNotFoundError reports an operation against a table that was never
// created.
type TableNotFoundError struct {
	Table string
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("table %s does not exist", e.Table)
}

// ItemNotFoundError reports a failed name or uid lookup. Key holds whichever
// the caller searched by.
type ItemNotFoundError struct {
	Table string
	Key   string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("item %s not found in table %s", e.Key, e.Table)
}

// ExtraColumnError reports extra-column values that do not exactly match the
// table's declared set. Partial rows are a hard error, never stored.
type ExtraColumnError struct {
	Table      string
	Missing    []string
	Unexpected []string
}

func (e *ExtraColumnError) Error() string {
	return fmt.Sprintf("table %s: extra column mismatch (missing %v, unexpected %v)",
		e.Table, e.Missing, e.Unexpected)
}

// ExtraColumnsRedeclaredError reports an attempt to declare extra columns for
// a table that already has a declaration in the store metadata. The column
// set is fixed at table creation for the table's lifetime.
type ExtraColumnsRedeclaredError struct {
	Table string
}

func (e *ExtraColumnsRedeclaredError) Error() string {
	return fmt.Sprintf("extra columns for table %s were already declared", e.Table)
}

// DuplicateUIDError reports a supplied uid that is already assigned to an
// item somewhere in the store. Uids are unique store-wide.
type DuplicateUIDError struct {
	UID   string
	Table string
}

func (e *DuplicateUIDError) Error() string {
	return fmt.Sprintf("uid %s is already assigned in table %s", e.UID, e.Table)
}
