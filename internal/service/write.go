package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/atlekbai/crud_registry/internal/condition"
	"github.com/atlekbai/crud_registry/internal/query"
	"github.com/atlekbai/crud_registry/internal/schema"
)

// Values is the writable input of one record: field values keyed by API
// name, and many-to-many relation names mapped to lists of target ids.
// Updates also carry the record's id.
type Values map[string]any

// ValidationErrors lists every violation found in a write, in input order.
type ValidationErrors []*AppError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

func (v ValidationErrors) Unwrap() []error {
	errs := make([]error, len(v))
	for i, e := range v {
		errs[i] = e
	}
	return errs
}

// number is implemented by the decoded JSON number types.
type number interface {
	Int64() (int64, error)
	Float64() (float64, error)
	String() string
}

type linkSet struct {
	rel *schema.RelationDef
	ids []any
}

type targetCheck struct {
	name string
	obj  *schema.ObjectDef
	ids  []any
}

// writePlan is validated input ready to be written.
type writePlan struct {
	values  []query.Assignment
	links   []linkSet
	targets []targetCheck
}

// CreateOne inserts a record and returns it as stored.
func (s *CrudService) CreateOne(ctx context.Context, object string, in Values) (Record, error) {
	records, err := s.create(ctx, object, []Values{in})
	if err != nil {
		return nil, err
	}
	return records[0], nil
}

// CreateMany inserts every record or none. All violations across the batch
// are reported together.
func (s *CrudService) CreateMany(ctx context.Context, object string, in []Values) ([]Record, error) {
	if len(in) == 0 {
		return nil, invalidInput("nothing to create", nil)
	}
	return s.create(ctx, object, in)
}

func (s *CrudService) create(ctx context.Context, object string, items []Values) ([]Record, error) {
	obj, err := s.Object(object)
	if err != nil {
		return nil, err
	}

	plans := make([]*writePlan, len(items))
	var errs ValidationErrors
	for i, in := range items {
		plan, perrs := s.planWrite(obj, in, true)
		plans[i] = plan
		errs = append(errs, itemErrors(perrs, i, len(items))...)
	}
	if len(errs) > 0 {
		return nil, errs
	}

	var created []Record
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		var errs ValidationErrors
		claimed := make(map[string]bool)
		for i, plan := range plans {
			perrs, err := s.checkPlan(ctx, tx, obj, plan, nil)
			if err != nil {
				return err
			}
			for _, a := range uniqueValues(plan) {
				key := a.Field.APIName + "\x00" + fmt.Sprint(a.Value)
				if claimed[key] {
					perrs = append(perrs, alreadyFound(a))
				}
				claimed[key] = true
			}
			errs = append(errs, itemErrors(perrs, i, len(plans))...)
		}
		if len(errs) > 0 {
			return errs
		}

		for _, plan := range plans {
			rec, err := s.insert(ctx, tx, obj, plan)
			if err != nil {
				return err
			}
			created = append(created, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateOne changes the fields present in in on the record with in["id"].
// Absent fields keep their values; a relation list replaces the links.
func (s *CrudService) UpdateOne(ctx context.Context, object string, in Values) (Record, error) {
	records, err := s.update(ctx, object, []Values{in})
	if err != nil {
		return nil, err
	}
	return records[0], nil
}

// UpdateMany applies each update in order and stops at the first failing
// one, leaving every record unchanged.
func (s *CrudService) UpdateMany(ctx context.Context, object string, in []Values) ([]Record, error) {
	if len(in) == 0 {
		return nil, invalidInput("nothing to update", nil)
	}
	return s.update(ctx, object, in)
}

func (s *CrudService) update(ctx context.Context, object string, items []Values) ([]Record, error) {
	obj, err := s.Object(object)
	if err != nil {
		return nil, err
	}

	var updated []Record
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		for i, in := range items {
			rec, err := s.updateRecord(ctx, tx, obj, in)
			var errs ValidationErrors
			switch {
			case errors.As(err, &errs):
				return itemErrors(errs, i, len(items))
			case err != nil:
				return err
			}
			updated = append(updated, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *CrudService) updateRecord(ctx context.Context, tx *sqlx.Tx, obj *schema.ObjectDef, in Values) (Record, error) {
	raw := in[schema.IDField]
	if raw == nil {
		return nil, ValidationErrors{newAppError(RequiredField, "required field: id.", nil, nil)}
	}
	key, err := idValue(obj, raw)
	if err != nil {
		return nil, ValidationErrors{AsAppError(err)}
	}

	current, err := s.fetchByID(ctx, tx, obj, key)
	if err != nil {
		return nil, err
	}
	if current == nil || (obj.SoftDeletable() && current[schema.DeletedField] == true) {
		return nil, ValidationErrors{newAppError(NotFound, "invalid id value", raw, nil)}
	}

	plan, errs := s.planWrite(obj, in, false)
	if len(errs) > 0 {
		return nil, errs
	}
	errs, err = s.checkPlan(ctx, tx, obj, plan, key)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return nil, errs
	}

	builder := query.NewBuilder(obj, s.format)
	if len(plan.values) > 0 {
		sqlStr, args, err := builder.BuildUpdate(key, plan.values)
		if err != nil {
			return nil, internalError("build query", err)
		}
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return nil, internalError("update failed", err)
		}
	}
	for _, link := range plan.links {
		sqlStr, args, err := builder.BuildUnlink(link.rel, []any{key})
		if err != nil {
			return nil, internalError("build query", err)
		}
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return nil, internalError("unlink failed", err)
		}
	}
	if err := s.link(ctx, tx, builder, key, plan.links); err != nil {
		return nil, err
	}
	return s.fetchByID(ctx, tx, obj, key)
}

func (s *CrudService) insert(ctx context.Context, tx *sqlx.Tx, obj *schema.ObjectDef, plan *writePlan) (Record, error) {
	builder := query.NewBuilder(obj, s.format)
	sqlStr, args, err := builder.BuildInsert(plan.values)
	if err != nil {
		return nil, internalError("build query", err)
	}
	var id any
	if err := tx.QueryRowxContext(ctx, sqlStr, args...).Scan(&id); err != nil {
		return nil, internalError("insert failed", err)
	}
	if err := s.link(ctx, tx, builder, id, plan.links); err != nil {
		return nil, err
	}

	rec, err := s.fetchByID(ctx, tx, obj, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, internalError("insert failed", fmt.Errorf("%s %v not found after insert", obj.APIName, id))
	}
	return rec, nil
}

func (s *CrudService) link(ctx context.Context, tx *sqlx.Tx, builder *query.Builder, id any, links []linkSet) error {
	for _, link := range links {
		if len(link.ids) == 0 {
			continue
		}
		sqlStr, args, err := builder.BuildLink(link.rel, id, link.ids)
		if err != nil {
			return internalError("build query", err)
		}
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return internalError("link failed", err)
		}
	}
	return nil
}

// planWrite checks in against obj without touching storage. On create,
// missing required fields are reported; on update only present keys matter.
func (s *CrudService) planWrite(obj *schema.ObjectDef, in Values, creating bool) (*writePlan, ValidationErrors) {
	plan := &writePlan{}
	var errs ValidationErrors

	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if obj.Field(k) != nil {
			continue
		}
		if rel := obj.Relation(k); rel != nil && rel.Kind == schema.RelationManyToMany {
			continue
		}
		errs = append(errs, newAppError(InvalidInput, fmt.Sprintf("unknown field %q on %s", k, obj.APIName), k, nil))
	}

	for i := range obj.Fields {
		fd := &obj.Fields[i]
		raw, present := in[fd.APIName]

		switch {
		case fd.APIName == schema.IDField:
			if creating && present {
				errs = append(errs, newAppError(InvalidInput, "id is generated by the store", raw, nil))
			}
			continue
		case obj.SoftDeletable() && (fd.APIName == schema.DeletedField || fd.APIName == schema.DeletedAtField):
			if present {
				errs = append(errs, newAppError(InvalidInput, fmt.Sprintf("%s is set by delete operations", fd.APIName), raw, nil))
			}
			if creating && fd.APIName == schema.DeletedField {
				plan.values = append(plan.values, query.Assignment{Field: fd, Value: false})
			}
			continue
		}

		if !present {
			if creating && fd.IsRequired {
				errs = append(errs, requiredField(fd))
			}
			continue
		}
		if raw == nil {
			if fd.IsRequired {
				errs = append(errs, requiredField(fd))
				continue
			}
			plan.values = append(plan.values, query.Assignment{Field: fd})
			continue
		}

		v, err := fieldValue(fd, raw)
		if err != nil {
			errs = append(errs, newAppError(InvalidInput, fmt.Sprintf("invalid value for %s: %v", fd.APIName, err), raw, err))
			continue
		}
		plan.values = append(plan.values, query.Assignment{Field: fd, Value: v})
		if fd.Type == schema.FieldLookup && fd.LookupObjectID != nil {
			if target := s.cache.GetByID(*fd.LookupObjectID); target != nil {
				plan.targets = append(plan.targets, targetCheck{name: fd.APIName, obj: target, ids: []any{v}})
			}
		}
	}

	for i := range obj.Relations {
		rel := &obj.Relations[i]
		raw, present := in[rel.APIName]
		if rel.Kind != schema.RelationManyToMany || !present {
			continue
		}
		ids, err := idList(raw)
		if err != nil {
			errs = append(errs, newAppError(InvalidInput, fmt.Sprintf("invalid value for %s: %v", rel.APIName, err), raw, err))
			continue
		}
		plan.links = append(plan.links, linkSet{rel: rel, ids: ids})
		if target := s.cache.GetByID(rel.TargetObjectID); target != nil && len(ids) > 0 {
			plan.targets = append(plan.targets, targetCheck{name: rel.APIName, obj: target, ids: ids})
		}
	}
	return plan, errs
}

// checkPlan verifies referenced records exist and unique values are free.
// except is the id of the record being updated, nil on create.
func (s *CrudService) checkPlan(ctx context.Context, q sqlx.QueryerContext, obj *schema.ObjectDef, plan *writePlan, except any) (ValidationErrors, error) {
	var errs ValidationErrors

	for _, t := range plan.targets {
		sqlStr, args, err := query.NewBuilder(t.obj, s.format).BuildLiveIDs(t.ids)
		if err != nil {
			return nil, internalError("build query", err)
		}
		var found []any
		if err := sqlx.SelectContext(ctx, q, &found, sqlStr, args...); err != nil {
			return nil, internalError("query failed", err)
		}
		live := make(map[string]bool, len(found))
		for _, id := range found {
			live[idKey(id)] = true
		}
		for _, id := range t.ids {
			if !live[idKey(id)] {
				errs = append(errs, newAppError(InvalidInput, fmt.Sprintf("%s id = %v not found", t.name, id), id, nil))
				break
			}
		}
	}

	builder := query.NewBuilder(obj, s.format)
	for _, a := range uniqueValues(plan) {
		sqlStr, args, err := builder.BuildHolder(a.Field, a.Value, except)
		if err != nil {
			return nil, internalError("build query", err)
		}
		var holder any
		err = sqlx.GetContext(ctx, q, &holder, sqlStr, args...)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return nil, internalError("query failed", err)
		default:
			errs = append(errs, alreadyFound(a))
		}
	}
	return errs, nil
}

func uniqueValues(plan *writePlan) []query.Assignment {
	var out []query.Assignment
	for _, a := range plan.values {
		if a.Field.IsUnique && a.Value != nil {
			out = append(out, a)
		}
	}
	return out
}

func requiredField(fd *schema.FieldDef) *AppError {
	return newAppError(RequiredField, "required field: "+fd.APIName, fd.APIName, nil)
}

func alreadyFound(a query.Assignment) *AppError {
	return newAppError(AlreadyFound, fmt.Sprintf("%s already found.", a.Field.APIName), fmt.Sprint(a.Value), nil)
}

// itemErrors prefixes batch errors with the index of the failing item.
func itemErrors(errs ValidationErrors, i, n int) ValidationErrors {
	if n == 1 {
		return errs
	}
	out := make(ValidationErrors, len(errs))
	for j, e := range errs {
		out[j] = &AppError{Code: e.Code, Message: fmt.Sprintf("item %d: %s", i, e.Message), Data: e.Data, cause: e.cause}
	}
	return out
}

// fieldValue converts a decoded JSON value to the storage value of fd.
func fieldValue(fd *schema.FieldDef, raw any) (any, error) {
	switch fd.Type {
	case schema.FieldText:
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("expected a string, got %T", raw)
	case schema.FieldInteger, schema.FieldLookup:
		return wholeNumber(raw)
	case schema.FieldNumber:
		switch v := raw.(type) {
		case number:
			return v.Float64()
		case float64:
			return v, nil
		}
		return nil, fmt.Errorf("expected a number, got %T", raw)
	case schema.FieldBoolean:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("expected a boolean, got %T", raw)
	case schema.FieldDate:
		if s, ok := raw.(string); ok {
			return condition.ParseDate(s)
		}
		return nil, fmt.Errorf("expected a YYYY-MM-DD string, got %T", raw)
	case schema.FieldDatetime:
		if s, ok := raw.(string); ok {
			return time.Parse(time.RFC3339, s)
		}
		return nil, fmt.Errorf("expected an RFC 3339 string, got %T", raw)
	}
	return nil, fmt.Errorf("fields of type %s are not writable", fd.Type)
}

// Whole float64 values come from Struct payloads, which carry integers
// exactly only up to 2^53.
func wholeNumber(raw any) (int64, error) {
	switch v := raw.(type) {
	case number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("expected an integer, got %s", v.String())
		}
		return n, nil
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > 1<<53 {
			return 0, fmt.Errorf("expected an integer, got %v", v)
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	}
	return 0, fmt.Errorf("expected an integer, got %T", raw)
}

func idList(raw any) ([]any, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list of ids, got %T", raw)
	}
	ids := make([]any, 0, len(items))
	seen := make(map[int64]bool, len(items))
	for _, item := range items {
		n, err := wholeNumber(item)
		if err != nil {
			return nil, err
		}
		if !seen[n] {
			seen[n] = true
			ids = append(ids, n)
		}
	}
	return ids, nil
}

// idValue converts a body id to the id field's storage type.
func idValue(obj *schema.ObjectDef, raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		return parseID(obj, v)
	case number:
		return parseID(obj, v.String())
	}
	if fd := obj.Field(schema.IDField); fd != nil && fd.Type == schema.FieldInteger {
		n, err := wholeNumber(raw)
		if err != nil {
			return nil, newAppError(InvalidInput, "invalid id value", raw, err)
		}
		return n, nil
	}
	return nil, newAppError(InvalidInput, "invalid id value", raw, nil)
}

func idKey(id any) string {
	switch v := id.(type) {
	case []byte:
		return string(v)
	case int32:
		return fmt.Sprint(int64(v))
	}
	return fmt.Sprint(id)
}
