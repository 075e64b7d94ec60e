package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func parse(query string) Params {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?"+query, nil)
	return Parse(c)
}

func TestParse(t *testing.T) {
	tests := []struct {
		query string
		want  Params
	}{
		{"", Params{}},
		{"include_deleted=true", Params{IncludeDeleted: true}},
		{"page=2", Params{Page: 2, Limit: DefaultLimit, Offset: DefaultLimit}},
		{"page=3&limit=10", Params{Page: 3, Limit: 10, Offset: 20}},
		{"page=0&limit=1000", Params{Page: 1, Limit: MaxLimit}},
		{"limit=abc&include_deleted=1", Params{Page: 1, Limit: DefaultLimit, IncludeDeleted: true}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, parse(tt.query))
		})
	}
}
