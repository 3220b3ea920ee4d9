package handler

import (
	"bytes"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/paperpen-storefront/internal/domain/cart"
	"github.com/xenking/paperpen-storefront/internal/domain/product"
)

// Navigation targets; also used to mark the active nav link.
const (
	navHome     = "home"
	navProducts = "products"
	navCart     = "cart"
)

// pageData is the view model shared by every page template.
type pageData struct {
	StoreName string
	Tagline   string
	Active    string
	CartCount int
	Title     string

	Products []product.Product
	Cart     cart.Snapshot

	Status  int
	Message string
}

func (h *Handler) newPage(active, title string, store *cart.Store) pageData {
	return pageData{
		StoreName: h.storeName,
		Tagline:   h.tagline,
		Active:    active,
		CartCount: store.TotalItems(),
		Title:     title,
	}
}

// render executes the named page into a buffer first so a template error
// never leaves a half-written response.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	var buf bytes.Buffer
	if err := h.pages[page].ExecuteTemplate(&buf, "layout.html", data); err != nil {
		zctx.From(r.Context()).Error("Render page", zap.String("page", page), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, store *cart.Store, status int, msg string) {
	data := h.newPage("", http.StatusText(status), store)
	data.Status = status
	data.Message = msg
	h.render(w, r, status, "error", data)
}
