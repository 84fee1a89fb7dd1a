package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	page, p := Paginate(items, 2, 2)
	require.Equal(t, []int{3, 4}, page)
	require.Equal(t, Pagination{Page: 2, PerPage: 2, Total: 5, TotalPages: 3}, p)

	page, _ = Paginate(items, 3, 2)
	require.Equal(t, []int{5}, page)

	page, p = Paginate(items, 9, 2)
	require.Empty(t, page)
	require.Equal(t, 3, p.TotalPages)

	_, p = Paginate(items, 0, 1000)
	require.Equal(t, 1, p.Page)
	require.Equal(t, MaxPerPage, p.PerPage)

	page, p = Paginate([]int{}, 1, 20)
	require.Empty(t, page)
	require.Zero(t, p.TotalPages)
}
