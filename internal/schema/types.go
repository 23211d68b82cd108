package schema

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidSchema is returned when object definitions reference each other inconsistently.
var ErrInvalidSchema = errors.New("invalid schema")

// QuoteIdent quotes a SQL identifier, escaping embedded double quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

type FieldType string

const (
	FieldText     FieldType = "TEXT"
	FieldInteger  FieldType = "INTEGER"
	FieldNumber   FieldType = "NUMBER"
	FieldDate     FieldType = "DATE"
	FieldDatetime FieldType = "DATETIME"
	FieldBoolean  FieldType = "BOOLEAN"
	FieldLookup   FieldType = "LOOKUP"
)

var knownFieldTypes = map[FieldType]bool{
	FieldText: true, FieldInteger: true, FieldNumber: true, FieldDate: true,
	FieldDatetime: true, FieldBoolean: true, FieldLookup: true,
}

// Well-known field API names.
const (
	IDField        = "id"
	DeletedField   = "deleted"
	DeletedAtField = "deletedAt"
)

// FieldDef describes one stored field. IsUnique fields reject writes whose
// value another live record already holds.
type FieldDef struct {
	ID             uuid.UUID
	ObjectID       uuid.UUID
	APIName        string
	Title          string
	Type           FieldType
	IsRequired     bool
	IsUnique       bool
	StorageColumn  string
	LookupObjectID *uuid.UUID
}

// Ref returns the qualified column reference for the field under the given table alias.
func (f *FieldDef) Ref(alias string) string {
	return QuoteIdent(alias) + "." + QuoteIdent(f.StorageColumn)
}

type RelationKind string

const (
	// RelationLookup is a to-one hop: Column on the source table holds the target id.
	RelationLookup RelationKind = "LOOKUP"
	// RelationReverse is a to-many hop: Column on the target table holds the source id.
	RelationReverse RelationKind = "REVERSE"
	// RelationManyToMany hops through JoinTable.
	RelationManyToMany RelationKind = "MANY_TO_MANY"
)

type RelationDef struct {
	ID               uuid.UUID
	ObjectID         uuid.UUID
	APIName          string
	Kind             RelationKind
	TargetObjectID   uuid.UUID
	Column           string
	JoinTable        string
	JoinSourceColumn string
	JoinTargetColumn string
}

type ObjectDef struct {
	ID            uuid.UUID
	APIName       string
	Title         string
	StorageSchema *string
	StorageTable  string
	// SoftDelete marks objects whose records are flagged through the deleted
	// and deletedAt fields instead of being removed.
	SoftDelete bool

	Fields             []FieldDef
	FieldsByAPIName    map[string]*FieldDef
	Relations          []RelationDef
	RelationsByAPIName map[string]*RelationDef
}

// TableName returns the quoted, optionally schema-qualified table name.
func (o *ObjectDef) TableName() string {
	if o.StorageSchema != nil && *o.StorageSchema != "" {
		return QuoteIdent(*o.StorageSchema) + "." + QuoteIdent(o.StorageTable)
	}
	return QuoteIdent(o.StorageTable)
}

func (o *ObjectDef) Field(apiName string) *FieldDef {
	return o.FieldsByAPIName[apiName]
}

func (o *ObjectDef) Relation(apiName string) *RelationDef {
	return o.RelationsByAPIName[apiName]
}

// IDColumn returns the storage column of the id field, defaulting to "id".
func (o *ObjectDef) IDColumn() string {
	if f := o.Field(IDField); f != nil {
		return f.StorageColumn
	}
	return IDField
}

// SoftDeletable reports whether deletes flag records instead of removing them.
func (o *ObjectDef) SoftDeletable() bool {
	return o.SoftDelete
}

// Index rebuilds the lookup maps. Every LOOKUP field without an explicit
// relation of the same name gets an implicit to-one relation.
func (o *ObjectDef) Index() {
	o.FieldsByAPIName = make(map[string]*FieldDef, len(o.Fields))
	for i := range o.Fields {
		o.FieldsByAPIName[o.Fields[i].APIName] = &o.Fields[i]
	}

	declared := make(map[string]bool, len(o.Relations))
	for _, r := range o.Relations {
		declared[r.APIName] = true
	}
	for _, f := range o.Fields {
		if f.Type != FieldLookup || f.LookupObjectID == nil || declared[f.APIName] {
			continue
		}
		o.Relations = append(o.Relations, RelationDef{
			ID:             f.ID,
			ObjectID:       o.ID,
			APIName:        f.APIName,
			Kind:           RelationLookup,
			TargetObjectID: *f.LookupObjectID,
			Column:         f.StorageColumn,
		})
	}

	o.RelationsByAPIName = make(map[string]*RelationDef, len(o.Relations))
	for i := range o.Relations {
		o.RelationsByAPIName[o.Relations[i].APIName] = &o.Relations[i]
	}
}
