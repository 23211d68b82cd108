package condition_test

import (
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlekbai/crud_registry/internal/condition"
	"github.com/atlekbai/crud_registry/internal/schema"
)

// Relation names chosen so that name-derived aliases would clash: tags_link
// next to the many-to-many tags, and tags__owner next to the path tags.owner.
const blogYAML = `
objects:
  - apiName: posts
    fields:
      - { apiName: id, type: INTEGER }
      - { apiName: title, type: TEXT }
    relations:
      - { apiName: tags, kind: MANY_TO_MANY, target: tags, joinTable: post_tags, sourceColumn: post_id, targetColumn: tag_id }
      - { apiName: tags_link, kind: REVERSE, target: notes, column: post_id }
      - { apiName: tags__owner, kind: LOOKUP, target: people, column: owner_id }
  - apiName: tags
    fields:
      - { apiName: id, type: INTEGER }
      - { apiName: name, type: TEXT }
      - { apiName: owner, type: LOOKUP, column: owner_id, lookup: people }
  - apiName: notes
    fields:
      - { apiName: id, type: INTEGER }
      - { apiName: name, type: TEXT }
  - apiName: people
    fields:
      - { apiName: id, type: INTEGER }
      - { apiName: name, type: TEXT }
`

const blogSQL = `
CREATE TABLE people (id INTEGER PRIMARY KEY, name TEXT);
CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT, owner_id INTEGER);
CREATE TABLE tags (id INTEGER PRIMARY KEY, name TEXT, owner_id INTEGER);
CREATE TABLE post_tags (post_id INTEGER, tag_id INTEGER);
CREATE TABLE notes (id INTEGER PRIMARY KEY, name TEXT, post_id INTEGER);

INSERT INTO people VALUES (1, 'Ann'), (2, 'Bob');
INSERT INTO posts VALUES (1, 'p1', 1), (2, 'p2', 2), (3, 'p3', 1);
INSERT INTO tags VALUES (1, 'go', 1), (2, 'sql', 2);
INSERT INTO post_tags VALUES (1, 1), (2, 2), (3, 1);
INSERT INTO notes VALUES (1, 'draft', 1), (2, 'draft', 2), (3, 'final', 3);
`

var clauseAlias = regexp.MustCompile(`^\S+ "([^"]+)" ON `)

func TestJoinAliasesNeverCollide(t *testing.T) {
	cache := schema.NewCache()
	require.NoError(t, cache.LoadYAML(strings.NewReader(blogYAML)))
	posts := cache.Get("posts")
	c := condition.NewCompiler(cache)

	db, err := sqlx.Open("sqlite3", filepath.Join(t.TempDir(), "blog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(blogSQL)
	require.NoError(t, err)

	tests := []struct {
		name  string
		cond  string
		joins int
		want  []int64
	}{
		{
			name: "many-to-many next to a relation named after its link table",
			cond: `{"op":"&&",
				"lhs":{"op":"=","lhs":"tags.name","rhs":"go"},
				"rhs":{"op":"=","lhs":"tags_link.name","rhs":"draft"}}`,
			joins: 2,
			want:  []int64{1},
		},
		{
			name: "nested path next to a relation spelling the same path",
			cond: `{"op":"&&",
				"lhs":{"op":"=","lhs":"tags.owner.name","rhs":"Bob"},
				"rhs":{"op":"=","lhs":"tags__owner.name","rhs":"Bob"}}`,
			joins: 3,
			want:  []int64{2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, err := c.Compile(posts, tt.cond)
			require.NoError(t, err)
			require.Len(t, pred.Joins(), tt.joins)

			seen := map[string]bool{condition.RootAlias: true}
			for _, j := range pred.Joins() {
				for _, clause := range j.Clauses() {
					m := clauseAlias.FindStringSubmatch(clause)
					require.Len(t, m, 2, clause)
					assert.False(t, seen[m[1]], "alias %s bound twice", m[1])
					seen[m[1]] = true
				}
			}

			assert.Equal(t, tt.want, queryIDs(t, db, posts, pred, sq.Question))
		})
	}
}

func TestJoinAliasesFollowBindOrder(t *testing.T) {
	pred := compile(t, "awards", `{"op":"&&",
		"lhs":{"op":"=","lhs":"author.books.title","rhs":"Winter Ledger"},
		"rhs":{"op":"=","lhs":"author.fullName","rhs":"Jane Smith"}}`)

	joins := pred.Joins()
	require.Len(t, joins, 2)
	assert.Equal(t, []string{"_j1", "_j2"}, []string{joins[0].Alias, joins[1].Alias})
	assert.Equal(t, []string{
		`"author_books" "_j2_link" ON "_j2_link"."author_id" = "_j1"."id"`,
		`"books" "_j2" ON "_j2"."id" = "_j2_link"."book_id"`,
	}, joins[1].Clauses())
}
