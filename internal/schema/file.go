package schema

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Definitions loaded from a file get name-derived ids so they are stable across restarts.
var fileNamespace = uuid.MustParse("6f1c0b52-8d1e-4a57-9a40-3b0b3c5f2e10")

type fileSchema struct {
	Objects []fileObject `yaml:"objects"`
}

type fileObject struct {
	APIName    string         `yaml:"apiName"`
	Title      string         `yaml:"title"`
	Schema     string         `yaml:"schema"`
	Table      string         `yaml:"table"`
	SoftDelete bool           `yaml:"softDelete"`
	Fields     []fileField    `yaml:"fields"`
	Relations  []fileRelation `yaml:"relations"`
}

type fileField struct {
	APIName  string `yaml:"apiName"`
	Title    string `yaml:"title"`
	Type     string `yaml:"type"`
	Column   string `yaml:"column"`
	Required bool   `yaml:"required"`
	Unique   bool   `yaml:"unique"`
	Lookup   string `yaml:"lookup"`
}

type fileRelation struct {
	APIName      string `yaml:"apiName"`
	Kind         string `yaml:"kind"`
	Target       string `yaml:"target"`
	Column       string `yaml:"column"`
	JoinTable    string `yaml:"joinTable"`
	SourceColumn string `yaml:"sourceColumn"`
	TargetColumn string `yaml:"targetColumn"`
}

// LoadFile replaces the cache contents with the definitions in a YAML schema file.
func (c *Cache) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open schema file: %w", err)
	}
	defer f.Close()
	return c.LoadYAML(f)
}

// LoadYAML replaces the cache contents with the definitions read from r.
func (c *Cache) LoadYAML(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc fileSchema
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode schema file: %w", err)
	}

	ids := make(map[string]uuid.UUID, len(doc.Objects))
	for _, fo := range doc.Objects {
		if fo.APIName == "" {
			return fmt.Errorf("%w: object without apiName", ErrInvalidSchema)
		}
		if _, dup := ids[fo.APIName]; dup {
			return fmt.Errorf("%w: object %q declared twice", ErrInvalidSchema, fo.APIName)
		}
		ids[fo.APIName] = objectID(fo.APIName)
	}

	objects := make(map[string]*ObjectDef, len(doc.Objects))
	for _, fo := range doc.Objects {
		obj, err := fo.toObject(ids)
		if err != nil {
			return err
		}
		objects[obj.APIName] = obj
	}

	return c.install(objects)
}

func (fo fileObject) toObject(ids map[string]uuid.UUID) (*ObjectDef, error) {
	obj := &ObjectDef{
		ID:           ids[fo.APIName],
		APIName:      fo.APIName,
		Title:        orDefault(fo.Title, fo.APIName),
		StorageTable: orDefault(fo.Table, fo.APIName),
		SoftDelete:   fo.SoftDelete,
	}
	if fo.Schema != "" {
		obj.StorageSchema = new(fo.Schema)
	}

	for _, ff := range fo.Fields {
		field := FieldDef{
			ID:            uuid.NewSHA1(obj.ID, []byte("field/"+ff.APIName)),
			ObjectID:      obj.ID,
			APIName:       ff.APIName,
			Title:         orDefault(ff.Title, ff.APIName),
			Type:          FieldType(ff.Type),
			IsRequired:    ff.Required,
			IsUnique:      ff.Unique,
			StorageColumn: orDefault(ff.Column, ff.APIName),
		}
		if ff.Lookup != "" {
			target, ok := ids[ff.Lookup]
			if !ok {
				return nil, fmt.Errorf("%w: field %q on %s looks up unknown object %q", ErrInvalidSchema, ff.APIName, fo.APIName, ff.Lookup)
			}
			field.LookupObjectID = new(target)
		}
		obj.Fields = append(obj.Fields, field)
	}

	for _, fr := range fo.Relations {
		target, ok := ids[fr.Target]
		if !ok {
			return nil, fmt.Errorf("%w: relation %q on %s targets unknown object %q", ErrInvalidSchema, fr.APIName, fo.APIName, fr.Target)
		}
		obj.Relations = append(obj.Relations, RelationDef{
			ID:               uuid.NewSHA1(obj.ID, []byte("relation/"+fr.APIName)),
			ObjectID:         obj.ID,
			APIName:          fr.APIName,
			Kind:             RelationKind(fr.Kind),
			TargetObjectID:   target,
			Column:           fr.Column,
			JoinTable:        fr.JoinTable,
			JoinSourceColumn: fr.SourceColumn,
			JoinTargetColumn: fr.TargetColumn,
		})
	}

	return obj, nil
}

func objectID(apiName string) uuid.UUID {
	return uuid.NewSHA1(fileNamespace, []byte("object/"+apiName))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
