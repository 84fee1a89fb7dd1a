package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListWithoutPagingWritesEverything(t *testing.T) {
	rec := httptest.NewRecorder()
	List(rec, httptest.NewRequest(http.MethodGet, "/", nil), []string{"a", "b", "c"})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get(HeaderTotalCount))
	var got []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestListPaginates(t *testing.T) {
	rec := httptest.NewRecorder()
	List(rec, httptest.NewRequest(http.MethodGet, "/?page=2&per_page=2", nil), []string{"a", "b", "c"})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "3", rec.Header().Get(HeaderTotalCount))
	require.Equal(t, "2", rec.Header().Get(HeaderPage))
	require.Equal(t, "2", rec.Header().Get(HeaderTotalPages))
	var got []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, []string{"c"}, got)
}

func TestListRejectsBadPageParams(t *testing.T) {
	for _, query := range []string{"?page=0", "?page=x", "?per_page=-1"} {
		rec := httptest.NewRecorder()
		List(rec, httptest.NewRequest(http.MethodGet, "/"+query, nil), []int{1})
		require.Equal(t, http.StatusBadRequest, rec.Code, query)
		require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	}
}
