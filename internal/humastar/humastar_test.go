package humastar

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestNewPage(t *testing.T) {
	all := []int{1, 2, 3, 4, 5}

	tests := []struct {
		name          string
		offset, limit int
		want          []int
	}{
		{"first", 0, 2, []int{1, 2}},
		{"middle", 2, 2, []int{3, 4}},
		{"short last", 4, 2, []int{5}},
		{"past end", 9, 2, []int{}},
		{"negative offset", -3, 2, []int{1, 2}},
		{"no limit", 1, 0, []int{2, 3, 4, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := NewPage(all, tt.offset, tt.limit)
			assert.Equal(t, 5, page.Total)
			if diff := cmp.Diff(tt.want, page.Data); diff != "" {
				t.Errorf("data mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPaginationLinks(t *testing.T) {
	page := NewPage([]int{1, 2, 3, 4, 5}, 2, 2)
	want := []string{
		`</items?offset=0&limit=2>; rel="first"`,
		`</items?offset=0&limit=2>; rel="prev"`,
		`</items?offset=4&limit=2>; rel="next"`,
		`</items?offset=4&limit=2>; rel="last"`,
	}
	if diff := cmp.Diff(want, page.PaginationLinks("/items")); diff != "" {
		t.Errorf("links mismatch (-want +got):\n%s", diff)
	}

	empty := NewPage([]int{}, 0, 10)
	assert.Equal(t, []string{
		`</items?offset=0&limit=10>; rel="first"`,
		`</items?offset=0&limit=10>; rel="last"`,
	}, empty.PaginationLinks("/items"))
}

func TestActionsFor(t *testing.T) {
	actions := ActionsFor("a b", []ActionDef{
		{Rel: "refresh", Pattern: "/api/v1/chronomaps/%s/refresh", Method: "POST", Title: "Refetch content"},
		{Rel: "self", Pattern: "/api/v1/chronomaps/%s"},
	})
	assert.Equal(t, `</api/v1/chronomaps/a%20b/refresh>; rel="refresh"; method="POST"; title="Refetch content"`, actions[0].LinkHeader())
	assert.Equal(t, `</api/v1/chronomaps/a%20b>; rel="self"`, actions[1].LinkHeader())
}
