package httpx

import (
	"net/http"
	"strconv"

	"github.com/riceledger/riceledger/internal/shared"
)

// Pagination response headers.
const (
	HeaderTotalCount = "X-Total-Count"
	HeaderPage       = "X-Page"
	HeaderPerPage    = "X-Per-Page"
	HeaderTotalPages = "X-Total-Pages"
)

// List writes items as a JSON array. When the request carries page or
// per_page only that page is written and the metadata goes into headers.
func List[T any](w http.ResponseWriter, r *http.Request, items []T) {
	q := r.URL.Query()
	if !q.Has("page") && !q.Has("per_page") {
		JSON(w, http.StatusOK, items)
		return
	}
	page, err := queryInt(r, "page")
	if err != nil {
		RespondError(w, err)
		return
	}
	perPage, err := queryInt(r, "per_page")
	if err != nil {
		RespondError(w, err)
		return
	}
	slice, p := shared.Paginate(items, page, perPage)
	h := w.Header()
	h.Set(HeaderTotalCount, strconv.Itoa(p.Total))
	h.Set(HeaderPage, strconv.Itoa(p.Page))
	h.Set(HeaderPerPage, strconv.Itoa(p.PerPage))
	h.Set(HeaderTotalPages, strconv.Itoa(p.TotalPages))
	JSON(w, http.StatusOK, slice)
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, shared.Validation(name, "must be a positive integer")
	}
	return n, nil
}
