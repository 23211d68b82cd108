package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/atlekbai/crud_registry/internal/condition"
	"github.com/atlekbai/crud_registry/internal/query"
	"github.com/atlekbai/crud_registry/internal/schema"
)

// notDeletedCondition is conjoined with every read of a soft-deletable object.
const notDeletedCondition = `{"op":"=","lhs":"deleted","rhs":false}`

// CrudService runs condition-driven reads and deletes for any registered object.
type CrudService struct {
	db       *sqlx.DB
	cache    *schema.Cache
	compiler *condition.Compiler
	format   sq.PlaceholderFormat
	now      func() time.Time
}

func NewCrudService(db *sqlx.DB, cache *schema.Cache, format sq.PlaceholderFormat) *CrudService {
	return &CrudService{
		db:       db,
		cache:    cache,
		compiler: condition.NewCompiler(cache),
		format:   format,
		now:      time.Now,
	}
}

// Object looks up a registered object by API name.
func (s *CrudService) Object(name string) (*schema.ObjectDef, error) {
	obj := s.cache.Get(name)
	if obj == nil {
		return nil, newAppError(NotFound, fmt.Sprintf("no object registered with api name %q", name), name, ErrUnknownObject)
	}
	return obj, nil
}

// IsBlankCondition reports whether cond carries no constraint: empty,
// whitespace only, or an empty JSON object.
func IsBlankCondition(cond string) bool {
	compact := strings.Join(strings.Fields(cond), "")
	return compact == "" || compact == "{}"
}

// predicate compiles cond for obj, adding the not-deleted guard for
// soft-deletable objects. A blank cond on a hard-delete object yields nil,
// which matches every row.
func (s *CrudService) predicate(obj *schema.ObjectDef, cond string) (*condition.Predicate, error) {
	var (
		pred *condition.Predicate
		err  error
	)
	switch {
	case IsBlankCondition(cond) && obj.SoftDeletable():
		pred, err = s.compiler.Compile(obj, notDeletedCondition)
	case IsBlankCondition(cond):
		return nil, nil
	case obj.SoftDeletable():
		pred, err = s.compiler.CompileConjoined(obj, cond, notDeletedCondition)
	default:
		pred, err = s.compiler.Compile(obj, cond)
	}
	if err != nil {
		return nil, invalidInput(err.Error(), err)
	}
	return pred, nil
}

// GetOne returns the lowest-id record matching cond.
func (s *CrudService) GetOne(ctx context.Context, object, cond string) (Record, error) {
	obj, err := s.Object(object)
	if err != nil {
		return nil, err
	}
	if IsBlankCondition(cond) {
		return nil, invalidInput("bad JSON condition.", nil)
	}
	pred, err := s.predicate(obj, cond)
	if err != nil {
		return nil, err
	}

	sqlStr, args, err := query.NewBuilder(obj, s.format).BuildFirst(pred)
	if err != nil {
		return nil, internalError("build query", err)
	}
	records, err := queryRecords(ctx, s.db, obj, sqlStr, args)
	if err != nil {
		return nil, internalError("query failed", err)
	}
	if len(records) == 0 {
		return nil, newAppError(NotFound, "no results matched such condition", nil, nil)
	}
	return records[0], nil
}

// GetOneByID returns the record with the given id, deleted or not.
func (s *CrudService) GetOneByID(ctx context.Context, object, id string) (Record, error) {
	obj, err := s.Object(object)
	if err != nil {
		return nil, err
	}
	key, err := parseID(obj, id)
	if err != nil {
		return nil, err
	}

	rec, err := s.fetchByID(ctx, s.db, obj, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, newAppError(NotFound, "invalid id value", id, nil)
	}
	return rec, nil
}

// GetMany returns one page of records matching cond; a blank cond matches all.
func (s *CrudService) GetMany(ctx context.Context, object, cond string, page query.PageParams) (*Page, error) {
	obj, err := s.Object(object)
	if err != nil {
		return nil, err
	}
	pred, err := s.predicate(obj, cond)
	if err != nil {
		return nil, err
	}
	builder := query.NewBuilder(obj, s.format)

	g, gctx := errgroup.WithContext(ctx)

	var total int64
	g.Go(func() error {
		var err error
		total, err = s.count(gctx, builder, pred)
		return err
	})

	var records []Record
	g.Go(func() error {
		sqlStr, args, err := builder.BuildList(pred, page)
		if err != nil {
			return err
		}
		records, err = queryRecords(gctx, s.db, obj, sqlStr, args)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, internalError("query failed", err)
	}

	return &Page{
		CurrentPage: page.PageNo,
		PageSize:    page.PageSize,
		TotalPages:  query.TotalPages(total, page.PageSize),
		TotalItems:  total,
		Data:        records,
	}, nil
}

// Count returns the number of records matching cond; a blank cond counts all.
func (s *CrudService) Count(ctx context.Context, object, cond string) (int64, error) {
	obj, err := s.Object(object)
	if err != nil {
		return 0, err
	}
	pred, err := s.predicate(obj, cond)
	if err != nil {
		return 0, err
	}
	n, err := s.count(ctx, query.NewBuilder(obj, s.format), pred)
	if err != nil {
		return 0, internalError("query failed", err)
	}
	return n, nil
}

func (s *CrudService) count(ctx context.Context, builder *query.Builder, pred *condition.Predicate) (int64, error) {
	sqlStr, args, err := builder.BuildCount(pred)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.GetContext(ctx, &n, sqlStr, args...); err != nil {
		return 0, err
	}
	return n, nil
}

// DeleteOneByID removes the record, or flags it when the object is
// soft-deletable. It returns the record as it is after the delete.
func (s *CrudService) DeleteOneByID(ctx context.Context, object, id string) (Record, error) {
	obj, err := s.Object(object)
	if err != nil {
		return nil, err
	}
	key, err := parseID(obj, id)
	if err != nil {
		return nil, err
	}

	var deleted Record
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		rec, err := s.fetchByID(ctx, tx, obj, key)
		if err != nil {
			return err
		}
		if rec == nil {
			return newAppError(NotFound, "invalid id value", id, nil)
		}
		if obj.SoftDeletable() && rec[schema.DeletedField] == true {
			return newAppError(AlreadyDeleted, "the entity is already deleted", id, nil)
		}
		records := []Record{rec}
		if err := s.remove(ctx, tx, obj, records); err != nil {
			return err
		}
		deleted = records[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// DeleteMany removes or flags every record matching cond and returns them.
func (s *CrudService) DeleteMany(ctx context.Context, object, cond string) ([]Record, error) {
	obj, err := s.Object(object)
	if err != nil {
		return nil, err
	}
	if IsBlankCondition(cond) {
		return nil, invalidInput("condition is required", nil)
	}
	pred, err := s.predicate(obj, cond)
	if err != nil {
		return nil, err
	}

	var deleted []Record
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		sqlStr, args, err := query.NewBuilder(obj, s.format).BuildAll(pred)
		if err != nil {
			return internalError("build query", err)
		}
		records, err := queryRecords(ctx, tx, obj, sqlStr, args)
		if err != nil {
			return internalError("query failed", err)
		}
		if len(records) == 0 {
			return newAppError(NotFound, "nothing was deleted.", nil, nil)
		}
		if err := s.remove(ctx, tx, obj, records); err != nil {
			return err
		}
		deleted = records
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// remove deletes records inside tx. Soft-deletable objects are flagged and
// the records updated in place; others lose their join-table links first.
func (s *CrudService) remove(ctx context.Context, tx *sqlx.Tx, obj *schema.ObjectDef, records []Record) error {
	builder := query.NewBuilder(obj, s.format)
	ids := recordIDs(records)

	if obj.SoftDeletable() {
		today := condition.DateOf(s.now())
		sqlStr, args, err := builder.BuildSoftDelete(ids, today)
		if err != nil {
			return internalError("build query", err)
		}
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return internalError("soft delete failed", err)
		}
		for _, r := range records {
			r[schema.DeletedField] = true
			r[schema.DeletedAtField] = today.String()
		}
		return nil
	}

	for i := range obj.Relations {
		rel := &obj.Relations[i]
		if rel.Kind != schema.RelationManyToMany {
			continue
		}
		sqlStr, args, err := builder.BuildUnlink(rel, ids)
		if err != nil {
			return internalError("build query", err)
		}
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return internalError("unlink failed", err)
		}
	}

	sqlStr, args, err := builder.BuildDelete(ids)
	if err != nil {
		return internalError("build query", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return internalError("delete failed", err)
	}
	return nil
}

func (s *CrudService) fetchByID(ctx context.Context, q sqlx.QueryerContext, obj *schema.ObjectDef, id any) (Record, error) {
	sqlStr, args, err := query.NewBuilder(obj, s.format).BuildGetByID(id)
	if err != nil {
		return nil, internalError("build query", err)
	}
	records, err := queryRecords(ctx, q, obj, sqlStr, args)
	if err != nil {
		return nil, internalError("query failed", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func (s *CrudService) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return internalError("begin transaction", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return internalError("rollback failed", errors.Join(err, rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return internalError("commit failed", err)
	}
	return nil
}

// parseID converts a path id to the id field's storage type.
func parseID(obj *schema.ObjectDef, id string) (any, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, newAppError(RequiredField, "required field: id.", nil, nil)
	}
	fd := obj.Field(schema.IDField)
	if fd == nil || fd.Type != schema.FieldInteger {
		return id, nil
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, newAppError(InvalidInput, "invalid id value", id, err)
	}
	return n, nil
}
