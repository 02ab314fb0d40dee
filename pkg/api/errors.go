package api

import (
	"errors"
	"net/http"

	"github.com/sodav-monitor/sodav/pkg/fingerprint"
	"github.com/sodav-monitor/sodav/pkg/httputil"
	"github.com/sodav-monitor/sodav/pkg/observability"
)

// writeError maps domain, storage and provider failures to a response.
func writeError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	if errors.Is(err, fingerprint.ErrProviderUnavailable) {
		observability.FromContext(r.Context()).WithError(err).Warn("identification provider unavailable")
		httputil.WriteServiceUnavailable(w, "identification provider unavailable")
		return
	}
	httputil.WriteStoreError(w, r, err, notFound)
}

type listResponse[T any] struct {
	Items  []T `json:"items"`
	Count  int `json:"count"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func newList[T any](items []T, limit, offset int) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Count: len(items), Limit: limit, Offset: offset}
}

// parsePage reads limit and offset, writing a 400 on malformed input.
func parsePage(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit, err := httputil.ParseQueryInt(r, "limit", 0)
	if err != nil || limit < 0 {
		httputil.WriteBadRequest(w, "invalid limit")
		return 0, 0, false
	}
	offset, err = httputil.ParseQueryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		httputil.WriteBadRequest(w, "invalid offset")
		return 0, 0, false
	}
	return limit, offset, true
}
