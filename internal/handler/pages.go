package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/paperpen-storefront/internal/domain/cart"
)

// Home renders the landing page.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request, store *cart.Store) {
	h.render(w, r, http.StatusOK, "home", h.newPage(navHome, "Home", store))
}

// Products renders the catalog with an add-to-cart button per product.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request, store *cart.Store) {
	products, err := h.products.List(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("List products", zap.Error(err))
		h.renderError(w, r, store, http.StatusInternalServerError, "Products are unavailable right now.")
		return
	}

	data := h.newPage(navProducts, "Products", store)
	data.Products = products
	h.render(w, r, http.StatusOK, "products", data)
}

// Cart renders the cart lines and totals.
func (h *Handler) Cart(w http.ResponseWriter, r *http.Request, store *cart.Store) {
	data := h.newPage(navCart, "Your Cart", store)
	data.Cart = store.Snapshot()
	data.CartCount = data.Cart.TotalItems
	h.render(w, r, http.StatusOK, "cart", data)
}

// NotFound renders the 404 page for unknown paths.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request, store *cart.Store) {
	h.renderError(w, r, store, http.StatusNotFound, "Page not found.")
}
