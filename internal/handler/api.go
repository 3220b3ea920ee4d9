package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/paperpen-storefront/internal/domain/cart"
	"github.com/xenking/paperpen-storefront/internal/domain/product"
)

const maxBodyBytes = 1 << 16

// APIListProducts returns every catalog product.
func (h *Handler) APIListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("List products", zap.Error(err))
		writeAPIError(w, http.StatusInternalServerError, "list products failed")
		return
	}

	var e jx.Encoder
	e.Arr(func(e *jx.Encoder) {
		for _, p := range products {
			encodeProduct(e, p)
		}
	})
	writeJSON(w, http.StatusOK, &e)
}

// APIGetProduct returns a single product by ID.
func (h *Handler) APIGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeAPIError(w, http.StatusNotFound, "product not found")
			return
		}
		zctx.From(r.Context()).Error("Get product", zap.Error(err))
		writeAPIError(w, http.StatusInternalServerError, "get product failed")
		return
	}

	var e jx.Encoder
	encodeProduct(&e, *p)
	writeJSON(w, http.StatusOK, &e)
}

// APIGetCart returns the session cart.
func (h *Handler) APIGetCart(w http.ResponseWriter, _ *http.Request, store *cart.Store) {
	writeCart(w, store.Snapshot())
}

// APIAddItem adds {"product_id": "...", "quantity": n} to the session cart.
// quantity defaults to 1.
func (h *Handler) APIAddItem(w http.ResponseWriter, r *http.Request, store *cart.Store) {
	id, qty, err := decodeAddItem(jx.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes), 512))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.addToCart(r.Context(), store, id, qty); err != nil {
		status, msg := addErrorStatus(err)
		if status == http.StatusInternalServerError {
			zctx.From(r.Context()).Error("Add to cart", zap.String("product_id", id), zap.Error(err))
		}
		writeAPIError(w, status, msg)
		return
	}
	writeCart(w, store.Snapshot())
}

// APIRemoveItem removes a product from the session cart. Unknown products
// are ignored.
func (h *Handler) APIRemoveItem(w http.ResponseWriter, r *http.Request, store *cart.Store) {
	h.removeFromCart(r.Context(), store, r.PathValue("id"))
	writeCart(w, store.Snapshot())
}

// APIClearCart empties the session cart.
func (h *Handler) APIClearCart(w http.ResponseWriter, r *http.Request, store *cart.Store) {
	h.clearCart(r.Context(), store)
	writeCart(w, store.Snapshot())
}

func decodeAddItem(d *jx.Decoder) (id string, qty int, err error) {
	qty = 1
	err = d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			id, err = d.Str()
		case "quantity":
			qty, err = d.Int()
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return "", 0, err
	}
	if err := expectEnd(d); err != nil {
		return "", 0, err
	}
	if id == "" {
		return "", 0, errors.New("product_id is required")
	}
	if err := checkQuantityBound(qty); err != nil {
		return "", 0, err
	}
	return id, qty, nil
}

// expectEnd fails unless only whitespace follows the decoded value.
func expectEnd(d *jx.Decoder) error {
	if err := d.Skip(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON object")
	}
	return nil
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
		e.Field("price", func(e *jx.Encoder) { e.Raw([]byte(p.Price.StringFixed(2))) })
		if p.HasImage() {
			e.Field("image_url", func(e *jx.Encoder) { e.Str(p.ImageURL) })
		}
	})
}

func writeCart(w http.ResponseWriter, s cart.Snapshot) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range s.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Str(it.Product.ID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(it.Product.Name) })
						e.Field("price", func(e *jx.Encoder) { e.Raw([]byte(it.Product.Price.StringFixed(2))) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("subtotal", func(e *jx.Encoder) { e.Raw([]byte(it.Subtotal().StringFixed(2))) })
					})
				}
			})
		})
		e.Field("total_items", func(e *jx.Encoder) { e.Int(s.TotalItems) })
		e.Field("total_price", func(e *jx.Encoder) { e.Raw([]byte(s.TotalPrice.StringFixed(2))) })
	})
	writeJSON(w, http.StatusOK, &e)
}

func writeAPIError(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(status) })
		e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
	})
	writeJSON(w, status, &e)
}

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
