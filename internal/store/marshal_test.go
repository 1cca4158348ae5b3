package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recordstore/internal/record"
)

func TestLikeClause(t *testing.T) {
	clause := likeClause("LOWER(entity_name)")
	assert.Equal(t, "LOWER(entity_name) LIKE ? ESCAPE '!'", clause)
	// MySQL reads a backslash inside a string literal as an escape.
	assert.NotContains(t, clause, `\`)
}

func TestLikePattern(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hair", "%hair%"},
		{"100%", "%100!%%"},
		{"a_b", "%a!_b%"},
		{"wow!", "%wow!!%"},
		{`back\slash`, `%back\slash%`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, likePattern(tt.in))
		})
	}
}

func TestReadEntities_NameContainsSpecialCharacters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	bang := mustEntity(t, s, orgA, "product", "Shine!")
	under := mustEntity(t, s, orgA, "product", "Gel_Pro")
	slash := mustEntity(t, s, orgA, "product", `Back\Comb`)
	mustEntity(t, s, orgA, "product", "GelXPro")

	tests := []struct {
		contains string
		want     string
	}{
		{"ne!", bang.ID},
		{"l_p", under.ID},
		{`k\c`, slash.ID},
	}
	for _, tt := range tests {
		t.Run(tt.contains, func(t *testing.T) {
			got, err := s.ReadEntities(ctx, orgA, record.EntityFilter{NameContains: tt.contains})
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want}, entityIDs(got))
		})
	}
}

func entityIDs(es []record.Entity) []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.ID)
	}
	return out
}
