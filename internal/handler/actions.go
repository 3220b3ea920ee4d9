package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/paperpen-storefront/internal/domain/cart"
	"github.com/xenking/paperpen-storefront/internal/domain/product"
)

var (
	// errInvalidQuantity reports a quantity that is not an integer.
	errInvalidQuantity = errors.New("quantity must be a whole number")
	// errQuantityTooLarge reports a quantity no cart line can hold.
	errQuantityTooLarge = errors.Errorf("quantity must not exceed %d", cart.MaxQuantity)
)

// AddToCart handles the "Add to cart" form: product_id and an optional
// quantity (default 1). On success it redirects back to the product list.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request, store *cart.Store) {
	id := strings.TrimSpace(r.PostFormValue("product_id"))
	qty, err := parseQuantity(r.PostFormValue("quantity"))
	if err != nil {
		h.renderError(w, r, store, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.addToCart(r.Context(), store, id, qty); err != nil {
		status, msg := addErrorStatus(err)
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		if status == http.StatusInternalServerError {
			zctx.From(r.Context()).Error("Add to cart", zap.String("product_id", id), zap.Error(err))
		}
		h.renderError(w, r, store, status, msg)
		return
	}
	http.Redirect(w, r, "/products", http.StatusSeeOther)
}

// RemoveFromCart handles the "Remove" button on a cart line.
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request, store *cart.Store) {
	h.removeFromCart(r.Context(), store, strings.TrimSpace(r.PostFormValue("product_id")))
	http.Redirect(w, r, "/cart", http.StatusSeeOther)
}

// ClearCart handles the "Clear cart" button.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request, store *cart.Store) {
	h.clearCart(r.Context(), store)
	http.Redirect(w, r, "/cart", http.StatusSeeOther)
}

// addToCart resolves id through the catalog so the cart only ever holds
// catalog products, then adds qty units.
func (h *Handler) addToCart(ctx context.Context, store *cart.Store, id string, qty int) (err error) {
	ctx, span := h.tracer.Start(ctx, "cart.Add", trace.WithAttributes(
		attribute.String("product.id", id),
		attribute.Int("cart.quantity", qty),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	p, err := h.products.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := store.AddQuantity(*p, qty); err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("cart.total_items", store.TotalItems()))
	return nil
}

func (h *Handler) removeFromCart(ctx context.Context, store *cart.Store, id string) {
	_, span := h.tracer.Start(ctx, "cart.Remove", trace.WithAttributes(
		attribute.String("product.id", id),
	))
	defer span.End()
	store.Remove(id)
}

func (h *Handler) clearCart(ctx context.Context, store *cart.Store) {
	_, span := h.tracer.Start(ctx, "cart.Clear")
	defer span.End()
	store.Clear()
}

// addErrorStatus maps addToCart errors to an HTTP status and a user-facing
// message.
func addErrorStatus(err error) (int, string) {
	if errors.Is(err, product.ErrNotFound) {
		return http.StatusNotFound, "product not found"
	}
	var iqErr *cart.InvalidQuantityError
	if errors.As(err, &iqErr) {
		if iqErr.TooLarge() {
			return http.StatusUnprocessableEntity, fmt.Sprintf(
				"at most %d of a product fit in the cart, it already holds %d", cart.MaxQuantity, iqErr.InCart)
		}
		return http.StatusUnprocessableEntity, "quantity must be at least 1"
	}
	return http.StatusInternalServerError, "could not add product to cart"
}

// parseQuantity parses an optional form quantity; empty means 1.
func parseQuantity(v string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errInvalidQuantity
	}
	return n, checkQuantityBound(n)
}

// checkQuantityBound rejects quantities above cart.MaxQuantity before they
// reach the store. Non-positive values are left to the store.
func checkQuantityBound(n int) error {
	if n > cart.MaxQuantity {
		return errQuantityTooLarge
	}
	return nil
}
