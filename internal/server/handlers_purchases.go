package server

import (
	"net/http"
	"strconv"

	"github.com/jonathan/purchase-tracker/internal/server/middleware"
	"github.com/jonathan/purchase-tracker/internal/types"
)

func (s *Server) handleSpendingSummary(w http.ResponseWriter, r *http.Request) {
	owner, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	summary, err := s.deps.Purchases.SpendingSummary(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, summary)
}

// handleListItems pages through purchased order lines.
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	owner, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	q, err := itemQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	page, err := s.deps.Purchases.ListPurchasedItems(r.Context(), owner, q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, page)
}

// handleRepeatItems lists products bought more than once with their price history.
func (s *Server) handleRepeatItems(w http.ResponseWriter, r *http.Request) {
	owner, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	q, err := repeatItemQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	items, err := s.deps.Purchases.RepeatItems(r.Context(), owner, q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, items)
}

func itemQuery(r *http.Request) (types.ItemQuery, error) {
	q := types.DefaultItemQuery()
	values := r.URL.Query()
	var err error
	if q.Page, err = queryInt(values.Get("page"), "page", q.Page); err != nil {
		return q, err
	}
	if q.Limit, err = queryInt(values.Get("limit"), "limit", q.Limit); err != nil {
		return q, err
	}
	q.SortBy = queryString(values.Get("sort_by"), q.SortBy)
	q.SortOrder = queryString(values.Get("sort_order"), q.SortOrder)
	q.Filter = values.Get("filter_text")
	if err := q.Validate(); err != nil {
		return q, validationError(err)
	}
	return q, nil
}

func repeatItemQuery(r *http.Request) (types.RepeatItemQuery, error) {
	q := types.DefaultRepeatItemQuery()
	values := r.URL.Query()
	q.SortBy = queryString(values.Get("sort_by"), q.SortBy)
	q.SortOrder = queryString(values.Get("sort_order"), q.SortOrder)
	q.Filter = values.Get("filter_text")
	if raw := values.Get("price_changed_only"); raw != "" {
		changed, err := strconv.ParseBool(raw)
		if err != nil {
			return q, &ErrValidation{Field: "price_changed_only", Message: "must be a boolean"}
		}
		q.PriceChangedOnly = changed
	}
	if err := q.Validate(); err != nil {
		return q, validationError(err)
	}
	return q, nil
}

// queryInt parses an integer query parameter, returning def when absent.
func queryInt(raw, field string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ErrValidation{Field: field, Message: "must be an integer"}
	}
	return n, nil
}

func queryString(raw, def string) string {
	if raw == "" {
		return def
	}
	return raw
}
