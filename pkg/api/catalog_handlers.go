package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lukewarren/shelfd/pkg/httputil"
	"github.com/lukewarren/shelfd/pkg/observability"
	"github.com/lukewarren/shelfd/pkg/storage/postgres"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// CatalogHandlers handles the catalog CRUD endpoints. Reads require any
// authenticated identity; writes are registered behind the admin decision.
type CatalogHandlers struct {
	items  *postgres.ItemStore
	logger *observability.Logger
}

// NewCatalogHandlers creates the catalog handlers instance
func NewCatalogHandlers(items *postgres.ItemStore, logger *observability.Logger) *CatalogHandlers {
	return &CatalogHandlers{items: items, logger: logger}
}

// RegisterReadRoutes registers the read-only routes.
func (h *CatalogHandlers) RegisterReadRoutes(router *mux.Router) {
	router.HandleFunc("/items", h.listItems).Methods("GET")
	router.HandleFunc("/items/{id:[0-9]+}", h.getItem).Methods("GET")
}

// RegisterWriteRoutes registers the mutating routes.
func (h *CatalogHandlers) RegisterWriteRoutes(router *mux.Router) {
	router.HandleFunc("/items", h.createItem).Methods("POST")
	router.HandleFunc("/items/{id:[0-9]+}", h.updateItem).Methods("PUT")
	router.HandleFunc("/items/{id:[0-9]+}", h.deleteItem).Methods("DELETE")
}

// listItems handles GET /api/v1/items
func (h *CatalogHandlers) listItems(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.ParseQueryInt(r, "limit", defaultPageSize)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	items, total, err := h.items.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("list items failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"items":  items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// getItem handles GET /api/v1/items/{id}
func (h *CatalogHandlers) getItem(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	item, err := h.items.Get(r.Context(), id)
	if err != nil {
		h.logger.WithError(err).Error("get item failed")
		httputil.WriteInternalError(w)
		return
	}
	if item == nil {
		httputil.WriteNotFoundError(w, "item not found")
		return
	}
	httputil.WriteSuccess(w, item)
}

// createItem handles POST /api/v1/items
func (h *CatalogHandlers) createItem(w http.ResponseWriter, r *http.Request) {
	var item postgres.Item
	if !httputil.ParseJSONOrError(w, r, &item) {
		return
	}
	if !httputil.RequireNonEmpty(w, item.Title, "title") {
		return
	}

	if err := h.items.Create(r.Context(), &item); err != nil {
		h.logger.WithError(err).Error("create item failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteCreated(w, &item)
}

// updateItem handles PUT /api/v1/items/{id}
func (h *CatalogHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var item postgres.Item
	if !httputil.ParseJSONOrError(w, r, &item) {
		return
	}
	if !httputil.RequireNonEmpty(w, item.Title, "title") {
		return
	}
	item.ID = id

	found, err := h.items.Update(r.Context(), &item)
	if err != nil {
		h.logger.WithError(err).Error("update item failed")
		httputil.WriteInternalError(w)
		return
	}
	if !found {
		httputil.WriteNotFoundError(w, "item not found")
		return
	}
	httputil.WriteSuccess(w, &item)
}

// deleteItem handles DELETE /api/v1/items/{id}
func (h *CatalogHandlers) deleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	found, err := h.items.Delete(r.Context(), id)
	if err != nil {
		h.logger.WithError(err).Error("delete item failed")
		httputil.WriteInternalError(w)
		return
	}
	if !found {
		httputil.WriteNotFoundError(w, "item not found")
		return
	}
	httputil.WriteNoContent(w)
}
