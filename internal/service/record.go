package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/atlekbai/crud_registry/internal/condition"
	"github.com/atlekbai/crud_registry/internal/schema"
)

// Record is one entity row keyed by field API name.
type Record map[string]any

// Page is one page of a list result.
type Page struct {
	CurrentPage int      `json:"currentPage"`
	PageSize    int      `json:"pageSize"`
	TotalPages  int64    `json:"totalPages"`
	TotalItems  int64    `json:"totalItems"`
	Data        []Record `json:"data"`
}

func queryRecords(ctx context.Context, q sqlx.QueryerContext, obj *schema.ObjectDef, sqlStr string, args []any) ([]Record, error) {
	rows, err := q.QueryxContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		m := make(map[string]any, len(obj.Fields))
		if err := rows.MapScan(m); err != nil {
			return nil, err
		}
		records = append(records, normalize(obj, m))
	}
	return records, rows.Err()
}

// normalize converts driver values into their JSON form: DATE fields as
// YYYY-MM-DD, other timestamps as RFC 3339, raw bytes as text.
func normalize(obj *schema.ObjectDef, m map[string]any) Record {
	for k, v := range m {
		switch v := v.(type) {
		case []byte:
			m[k] = string(v)
		case time.Time:
			if fd := obj.Field(k); fd != nil && fd.Type == schema.FieldDate {
				m[k] = condition.DateOf(v).String()
			} else {
				m[k] = v.Format(time.RFC3339)
			}
		}
	}
	return Record(m)
}

func recordIDs(records []Record) []any {
	ids := make([]any, len(records))
	for i, r := range records {
		ids[i] = r[schema.IDField]
	}
	return ids
}
