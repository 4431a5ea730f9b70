package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromRequest_Defaults(t *testing.T) {
	req := httptest.NewRequest("GET", "/campaigns", nil)

	p := FromRequest(req)

	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PerPage)
	assert.Equal(t, 0, p.Offset)
}

func TestFromRequest_ExplicitValues(t *testing.T) {
	req := httptest.NewRequest("GET", "/campaigns?page=3&per_page=50", nil)

	p := FromRequest(req)

	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 50, p.PerPage)
	assert.Equal(t, 100, p.Offset)
}

func TestFromRequest_InvalidValuesFallBack(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"zero page", "page=0"},
		{"negative page", "page=-2"},
		{"non-numeric page", "page=abc"},
		{"per_page over cap", "per_page=500"},
		{"zero per_page", "per_page=0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/campaigns?"+tt.query, nil)

			p := FromRequest(req)

			assert.Equal(t, 1, p.Page)
			assert.Equal(t, 20, p.PerPage)
		})
	}
}

func TestNewResult(t *testing.T) {
	data := []string{"a", "b", "c"}

	r := NewResult(data, 25, Params{Page: 2, PerPage: 10})

	assert.Equal(t, data, r.Data)
	assert.Equal(t, 25, r.TotalCount)
	assert.Equal(t, 2, r.Page)
	assert.Equal(t, 10, r.PerPage)
	assert.Equal(t, 3, r.TotalPages)
	assert.True(t, r.HasNext)
	assert.True(t, r.HasPrev)
}

func TestNewResult_SinglePage(t *testing.T) {
	r := NewResult([]int{1, 2}, 2, Params{Page: 1, PerPage: 20})

	assert.Equal(t, 1, r.TotalPages)
	assert.False(t, r.HasNext)
	assert.False(t, r.HasPrev)
}

func TestNewResult_EmptyData(t *testing.T) {
	r := NewResult([]int{}, 0, Params{Page: 1, PerPage: 20})

	assert.Equal(t, 0, r.TotalPages)
	assert.False(t, r.HasNext)
	assert.False(t, r.HasPrev)
}
