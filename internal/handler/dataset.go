package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/eventform/internal/dataset"
	"github.com/matthewbaird/eventform/internal/loader"
	"github.com/matthewbaird/eventform/internal/types"
)

// DatasetHandler exposes the shared dataset catalog and its cache.
type DatasetHandler struct {
	catalog *dataset.Catalog
	loader  *loader.Loader
}

// NewDatasetHandler creates a new DatasetHandler.
func NewDatasetHandler(catalog *dataset.Catalog, l *loader.Loader) *DatasetHandler {
	return &DatasetHandler{catalog: catalog, loader: l}
}

// GetOptions resolves a dataset into options. Repeated "parent" query
// parameters walk down the hierarchy, e.g. ?parent=COL&parent=05.
// GET /v1/datasets/{resource}
func (h *DatasetHandler) GetOptions(w http.ResponseWriter, r *http.Request) {
	res, err := loader.ParseResource(chi.URLParam(r, "resource"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, "UNKNOWN_RESOURCE", err.Error())
		return
	}
	parents := r.URL.Query()["parent"]
	opts, err := h.catalog.Options(r.Context(), res, parents...)
	if err != nil {
		if loader.IsExhausted(err) {
			errorToHTTP(w, r, err)
			return
		}
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	if opts == nil {
		opts = []types.Option{}
	}
	writeJSON(w, r, http.StatusOK, struct {
		Resource loader.Resource `json:"resource"`
		Parents  []string        `json:"parents,omitempty"`
		Options  []types.Option  `json:"options"`
	}{res, parents, opts})
}

// GetSources lists the URLs tried for a resource, in order.
// GET /v1/datasets/{resource}/sources
func (h *DatasetHandler) GetSources(w http.ResponseWriter, r *http.Request) {
	res, err := loader.ParseResource(chi.URLParam(r, "resource"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, "UNKNOWN_RESOURCE", err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"resource": res, "urls": h.loader.URLs(res)})
}

// ClearCache drops cached datasets: one resource when ?resource= is given,
// all of them otherwise.
// DELETE /v1/datasets/cache
func (h *DatasetHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("resource")
	if raw == "" {
		h.loader.Clear()
		w.WriteHeader(http.StatusNoContent)
		return
	}
	res, err := loader.ParseResource(raw)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "UNKNOWN_RESOURCE", err.Error())
		return
	}
	h.loader.Invalidate(res)
	w.WriteHeader(http.StatusNoContent)
}
