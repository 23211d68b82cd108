package service

import (
	"context"
	stdjson "encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bookIDs(t *testing.T, svc *CrudService, author int64) []int64 {
	t.Helper()
	var ids []int64
	require.NoError(t, svc.db.Select(&ids, "SELECT book_id FROM author_books WHERE author_id = ? ORDER BY book_id", author))
	return ids
}

func TestCreateOne(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.CreateOne(ctx, "authors", Values{
		"fullName":  "Lena Ortiz",
		"birthDate": "1984-03-07",
		"books":     []any{stdjson.Number("5"), float64(9), stdjson.Number("5")},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec["id"])
	assert.Equal(t, "Lena Ortiz", rec["fullName"])
	assert.Equal(t, "1984-03-07", rec["birthDate"])
	assert.Equal(t, false, rec["deleted"])
	assert.Equal(t, []int64{5, 9}, bookIDs(t, svc, 5))

	got, err := svc.GetOneByID(ctx, "authors", "5")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	award, err := svc.CreateOne(ctx, "awards", Values{"name": "Debut Prize", "year": stdjson.Number("2025"), "author": float64(5)})
	require.NoError(t, err)
	assert.Equal(t, int64(2025), award["year"])
	assert.Equal(t, int64(5), award["author"])
}

func TestCreateOneReusesNameOfDeletedRecord(t *testing.T) {
	svc, _ := newTestService(t)

	rec, err := svc.CreateOne(context.Background(), "authors", Values{"fullName": "Mira Petrova"})
	require.NoError(t, err)
	assert.Equal(t, "Mira Petrova", rec["fullName"])
}

func TestCreateOneErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   Values
		code ErrorCode
		msg  string
	}{
		{"missing required", Values{"birthDate": "1990-01-01"}, RequiredField, "required field: fullName"},
		{"null required", Values{"fullName": nil}, RequiredField, "required field: fullName"},
		{"duplicate unique", Values{"fullName": "John Doe"}, AlreadyFound, "fullName already found."},
		{"unknown field", Values{"fullName": "A", "nickname": "B"}, InvalidInput, `unknown field "nickname" on authors`},
		{"reverse relation", Values{"fullName": "A", "awards": []any{1.0}}, InvalidInput, `unknown field "awards" on authors`},
		{"id supplied", Values{"id": 10.0, "fullName": "A"}, InvalidInput, "id is generated by the store"},
		{"deleted supplied", Values{"fullName": "A", "deleted": true}, InvalidInput, "deleted is set by delete operations"},
		{"wrong type", Values{"fullName": 12.0}, InvalidInput, "invalid value for fullName: expected a string, got float64"},
		{"bad date", Values{"fullName": "A", "birthDate": "07/03/1984"}, InvalidInput, "invalid value for birthDate"},
		{"missing book", Values{"fullName": "A", "books": []any{1.0, 42.0}}, InvalidInput, "books id = 42 not found"},
		{"books not a list", Values{"fullName": "A", "books": 1.0}, InvalidInput, "invalid value for books: expected a list of ids"},
		{"fractional book id", Values{"fullName": "A", "books": []any{1.5}}, InvalidInput, "invalid value for books: expected an integer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateOne(ctx, "authors", tt.in)
			appErr := requireAppError(t, err, tt.code)
			assert.Contains(t, appErr.Message, tt.msg)
		})
	}

	_, err := svc.CreateOne(ctx, "awards", Values{"name": "Late Prize", "author": 4.0})
	appErr := requireAppError(t, err, InvalidInput)
	assert.Equal(t, "author id = 4 not found", appErr.Message)

	n, err := svc.Count(ctx, "authors", "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestCreateManyReportsEveryViolation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateMany(ctx, "authors", []Values{
		{"fullName": "Kai Brandt"},
		{"birthDate": "1990-01-01"},
		{"fullName": "Jane Smith"},
		{"fullName": "Kai Brandt"},
	})
	var errs ValidationErrors
	require.ErrorAs(t, err, &errs)
	require.Len(t, errs, 1)
	assert.Equal(t, RequiredField, errs[0].Code)
	assert.Equal(t, "item 1: required field: fullName", errs[0].Message)

	_, err = svc.CreateMany(ctx, "authors", []Values{
		{"fullName": "Kai Brandt"},
		{"fullName": "Jane Smith"},
		{"fullName": "Kai Brandt"},
	})
	require.ErrorAs(t, err, &errs)
	require.Len(t, errs, 2)
	assert.Equal(t, "item 1: fullName already found.", errs[0].Message)
	assert.Equal(t, "item 2: fullName already found.", errs[1].Message)
	assert.Equal(t, AlreadyFound, AsAppError(err).Code)

	n, err := svc.Count(ctx, "authors", "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = svc.CreateMany(ctx, "authors", nil)
	requireAppError(t, err, InvalidInput)
}

func TestCreateMany(t *testing.T) {
	svc, _ := newTestService(t)

	records, err := svc.CreateMany(context.Background(), "books", []Values{
		{"title": "First Light", "noPages": 210.0, "authors": []any{1.0, 2.0}},
		{"title": "Second Light", "publishDate": "2021-02-03", "press": nil},
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(10), records[0]["id"])
	assert.Equal(t, int64(210), records[0]["noPages"])
	assert.Equal(t, int64(11), records[1]["id"])
	assert.Equal(t, "2021-02-03", records[1]["publishDate"])
	assert.Nil(t, records[1]["press"])

	assert.Contains(t, bookIDs(t, svc, 1), int64(10))
	assert.Contains(t, bookIDs(t, svc, 2), int64(10))
}

func TestUpdateOne(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.UpdateOne(ctx, "authors", Values{
		"id":        stdjson.Number("1"),
		"birthDate": "1951-02-02",
		"books":     []any{3.0},
	})
	require.NoError(t, err)
	assert.Equal(t, "John Doe", rec["fullName"])
	assert.Equal(t, "1951-02-02", rec["birthDate"])
	assert.Equal(t, []int64{3}, bookIDs(t, svc, 1))

	rec, err = svc.UpdateOne(ctx, "authors", Values{"id": "1", "fullName": "John Doe", "books": []any{}})
	require.NoError(t, err)
	assert.Equal(t, "John Doe", rec["fullName"])
	assert.Empty(t, bookIDs(t, svc, 1))

	rec, err = svc.UpdateOne(ctx, "books", Values{"id": 2.0, "press": nil, "edition": 3.0})
	require.NoError(t, err)
	assert.Nil(t, rec["press"])
	assert.Equal(t, int64(3), rec["edition"])
	assert.Equal(t, "The Planet Heroes", rec["title"])
}

func TestUpdateOneErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   Values
		code ErrorCode
		msg  string
	}{
		{"missing id", Values{"fullName": "X"}, RequiredField, "required field: id."},
		{"unknown id", Values{"id": 99.0, "fullName": "X"}, NotFound, "invalid id value"},
		{"deleted record", Values{"id": 4.0, "fullName": "X"}, NotFound, "invalid id value"},
		{"bad id", Values{"id": "abc"}, InvalidInput, "invalid id value"},
		{"taken name", Values{"id": 2.0, "fullName": "John Doe"}, AlreadyFound, "fullName already found."},
		{"clear required", Values{"id": 2.0, "fullName": nil}, RequiredField, "required field: fullName"},
		{"link missing book", Values{"id": 2.0, "books": []any{77.0}}, InvalidInput, "books id = 77 not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateOne(ctx, "authors", tt.in)
			appErr := requireAppError(t, err, tt.code)
			assert.Contains(t, appErr.Message, tt.msg)
		})
	}

	rec, err := svc.GetOneByID(ctx, "authors", "2")
	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", rec["fullName"])
	assert.Equal(t, []int64{2, 3, 7}, bookIDs(t, svc, 2))
}

func TestUpdateManyRollsBackOnFailure(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.UpdateMany(ctx, "books", []Values{
		{"id": 1.0, "press": "Changed"},
		{"id": 2.0, "noPages": "many"},
	})
	appErr := requireAppError(t, err, InvalidInput)
	assert.Contains(t, appErr.Message, "item 1: invalid value for noPages")

	rec, err := svc.GetOneByID(ctx, "books", "1")
	require.NoError(t, err)
	assert.Equal(t, "Dar Al Kutub", rec["press"])

	records, err := svc.UpdateMany(ctx, "authors", []Values{
		{"id": 1.0, "fullName": "Temp Name"},
		{"id": 2.0, "fullName": "John Doe"},
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Temp Name", records[0]["fullName"])
	assert.Equal(t, "John Doe", records[1]["fullName"])
}

func TestValidationErrorsUnwrap(t *testing.T) {
	errs := ValidationErrors{
		newAppError(RequiredField, "required field: title", "title", nil),
		newAppError(InvalidInput, "bad", nil, nil),
	}
	assert.Equal(t, "5000: required field: title; 5003: bad", errs.Error())
	assert.Same(t, errs[0], AsAppError(errs))
}
