package schema

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const loadObjectsQuery = `
SELECT
	o.id, o.api_name, o.title, o.storage_schema, o.storage_table, o.soft_delete,
	f.id, f.api_name, f.title, f.type, f.is_required, f.is_unique,
	f.storage_column, f.lookup_object_id
FROM metadata.objects o
LEFT JOIN metadata.fields f ON f.object_id = o.id
ORDER BY o.api_name, f.created_at
`

const loadRelationsQuery = `
SELECT
	r.id, r.object_id, r.api_name, r.kind, r.target_object_id,
	r.column_name, r.join_table, r.join_source_column, r.join_target_column
FROM metadata.relations r
ORDER BY r.object_id, r.api_name
`

type Cache struct {
	mu      sync.RWMutex
	objects map[string]*ObjectDef
	byID    map[uuid.UUID]*ObjectDef
}

func NewCache() *Cache {
	return &Cache{
		objects: make(map[string]*ObjectDef),
		byID:    make(map[uuid.UUID]*ObjectDef),
	}
}

// NewCacheFromObjects builds a cache from ready-made definitions without validation.
func NewCacheFromObjects(objs ...*ObjectDef) *Cache {
	c := NewCache()
	for _, obj := range objs {
		obj.Index()
		c.objects[obj.APIName] = obj
		c.byID[obj.ID] = obj
	}
	return c
}

// Load reads object, field and relation metadata and atomically replaces the cache contents.
func (c *Cache) Load(ctx context.Context, db *sqlx.DB) error {
	objects, err := loadObjects(ctx, db)
	if err != nil {
		return err
	}

	byID := make(map[uuid.UUID]*ObjectDef, len(objects))
	for _, obj := range objects {
		byID[obj.ID] = obj
	}

	if err := loadRelations(ctx, db, byID); err != nil {
		return err
	}

	return c.install(objects)
}

func loadObjects(ctx context.Context, db *sqlx.DB) (map[string]*ObjectDef, error) {
	rows, err := db.QueryContext(ctx, loadObjectsQuery)
	if err != nil {
		return nil, fmt.Errorf("schema cache load: %w", err)
	}
	defer rows.Close()

	objects := make(map[string]*ObjectDef)

	for rows.Next() {
		var (
			oID             uuid.UUID
			oAPIName        string
			oTitle          string
			oStorageSchema  *string
			oStorageTable   string
			oSoftDelete     bool
			fID             *uuid.UUID
			fAPIName        *string
			fTitle          *string
			fType           *string
			fIsRequired     *bool
			fIsUnique       *bool
			fStorageColumn  *string
			fLookupObjectID *uuid.UUID
		)

		err := rows.Scan(
			&oID, &oAPIName, &oTitle, &oStorageSchema, &oStorageTable, &oSoftDelete,
			&fID, &fAPIName, &fTitle, &fType, &fIsRequired, &fIsUnique,
			&fStorageColumn, &fLookupObjectID,
		)
		if err != nil {
			return nil, fmt.Errorf("schema cache scan: %w", err)
		}

		obj, exists := objects[oAPIName]
		if !exists {
			obj = &ObjectDef{
				ID:            oID,
				APIName:       oAPIName,
				Title:         oTitle,
				StorageSchema: oStorageSchema,
				StorageTable:  oStorageTable,
				SoftDelete:    oSoftDelete,
			}
			objects[oAPIName] = obj
		}

		if fID == nil {
			continue
		}
		field := FieldDef{
			ID:             *fID,
			ObjectID:       oID,
			APIName:        *fAPIName,
			Title:          deref(fTitle),
			Type:           FieldType(deref(fType)),
			IsRequired:     fIsRequired != nil && *fIsRequired,
			IsUnique:       fIsUnique != nil && *fIsUnique,
			StorageColumn:  deref(fStorageColumn),
			LookupObjectID: fLookupObjectID,
		}
		if field.StorageColumn == "" {
			field.StorageColumn = field.APIName
		}
		obj.Fields = append(obj.Fields, field)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schema cache rows: %w", err)
	}
	return objects, nil
}

func loadRelations(ctx context.Context, db *sqlx.DB, byID map[uuid.UUID]*ObjectDef) error {
	rows, err := db.QueryContext(ctx, loadRelationsQuery)
	if err != nil {
		return fmt.Errorf("schema relations load: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rel                                  RelationDef
			kind                                 string
			column, joinTable, joinSrc, joinDest *string
		)
		err := rows.Scan(
			&rel.ID, &rel.ObjectID, &rel.APIName, &kind, &rel.TargetObjectID,
			&column, &joinTable, &joinSrc, &joinDest,
		)
		if err != nil {
			return fmt.Errorf("schema relations scan: %w", err)
		}
		rel.Kind = RelationKind(kind)
		rel.Column = deref(column)
		rel.JoinTable = deref(joinTable)
		rel.JoinSourceColumn = deref(joinSrc)
		rel.JoinTargetColumn = deref(joinDest)

		obj := byID[rel.ObjectID]
		if obj == nil {
			return fmt.Errorf("%w: relation %q belongs to unknown object %s", ErrInvalidSchema, rel.APIName, rel.ObjectID)
		}
		obj.Relations = append(obj.Relations, rel)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("schema relations rows: %w", err)
	}
	return nil
}

// install indexes and validates objects, then swaps them in under the write lock.
func (c *Cache) install(objects map[string]*ObjectDef) error {
	byID := make(map[uuid.UUID]*ObjectDef, len(objects))
	for _, obj := range objects {
		obj.Index()
		byID[obj.ID] = obj
	}
	for _, obj := range objects {
		if err := validate(obj, byID); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.objects = objects
	c.byID = byID
	c.mu.Unlock()

	return nil
}

func validate(obj *ObjectDef, byID map[uuid.UUID]*ObjectDef) error {
	if obj.StorageTable == "" {
		return fmt.Errorf("%w: object %q has no storage table", ErrInvalidSchema, obj.APIName)
	}
	for _, f := range obj.Fields {
		if !knownFieldTypes[f.Type] {
			return fmt.Errorf("%w: field %q on %s has unknown type %q", ErrInvalidSchema, f.APIName, obj.APIName, f.Type)
		}
	}

	for _, r := range obj.Relations {
		if byID[r.TargetObjectID] == nil {
			return fmt.Errorf("%w: relation %q on %s targets unknown object %s", ErrInvalidSchema, r.APIName, obj.APIName, r.TargetObjectID)
		}
		switch r.Kind {
		case RelationLookup, RelationReverse:
			if r.Column == "" {
				return fmt.Errorf("%w: relation %q on %s needs a column", ErrInvalidSchema, r.APIName, obj.APIName)
			}
		case RelationManyToMany:
			if r.JoinTable == "" || r.JoinSourceColumn == "" || r.JoinTargetColumn == "" {
				return fmt.Errorf("%w: relation %q on %s needs a join table with source and target columns", ErrInvalidSchema, r.APIName, obj.APIName)
			}
		default:
			return fmt.Errorf("%w: relation %q on %s has unknown kind %q", ErrInvalidSchema, r.APIName, obj.APIName, r.Kind)
		}
	}

	if obj.SoftDelete {
		deleted := obj.Field(DeletedField)
		if deleted == nil || deleted.Type != FieldBoolean {
			return fmt.Errorf("%w: soft-delete object %s needs a BOOLEAN %q field", ErrInvalidSchema, obj.APIName, DeletedField)
		}
		deletedAt := obj.Field(DeletedAtField)
		if deletedAt == nil || (deletedAt.Type != FieldDate && deletedAt.Type != FieldDatetime) {
			return fmt.Errorf("%w: soft-delete object %s needs a DATE %q field", ErrInvalidSchema, obj.APIName, DeletedAtField)
		}
	}
	return nil
}

func (c *Cache) Get(apiName string) *ObjectDef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.objects[apiName]
}

// GetByID finds an object definition by its UUID.
func (c *Cache) GetByID(id uuid.UUID) *ObjectDef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byID[id]
}

// ObjectCount returns the number of loaded objects.
func (c *Cache) ObjectCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.objects)
}

// Objects returns the loaded definitions sorted by API name.
func (c *Cache) Objects() []*ObjectDef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*ObjectDef, 0, len(c.objects))
	for _, obj := range c.objects {
		out = append(out, obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].APIName < out[j].APIName })
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
