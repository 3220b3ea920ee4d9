package handler

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/paperpen-storefront/internal/domain/cart"
	"github.com/xenking/paperpen-storefront/internal/domain/product"
)

// ErrMissingDependency is returned by NewHandler when a required dependency
// is nil.
var ErrMissingDependency = errors.New("handler: missing dependency")

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// CartProvider resolves the cart owned by the session behind a request.
type CartProvider interface {
	// Cart returns the session cart, starting a session when there is none.
	Cart(w http.ResponseWriter, r *http.Request) (sessionID string, store *cart.Store)
	// Find returns the session cart without ever starting a session.
	Find(r *http.Request) (store *cart.Store, ok bool)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	StoreName string
	Tagline   string
}

// Option configures optional Handler dependencies.
type Option func(*Handler)

// WithTracer sets the tracer used for cart action spans.
func WithTracer(t trace.Tracer) Option {
	return func(h *Handler) {
		if t != nil {
			h.tracer = t
		}
	}
}

// Handler serves the storefront pages, the cart form actions and the JSON
// API. Every cart operation goes through the store handed out by the
// CartProvider for the current request.
type Handler struct {
	products product.Repository
	carts    CartProvider
	tracer   trace.Tracer

	storeName string
	tagline   string
	pages     map[string]*template.Template
}

// NewHandler constructs a Handler. products and carts are required.
func NewHandler(cfg Config, products product.Repository, carts CartProvider, opts ...Option) (*Handler, error) {
	if products == nil {
		return nil, errors.Wrap(ErrMissingDependency, "product repository")
	}
	if carts == nil {
		return nil, errors.Wrap(ErrMissingDependency, "cart provider")
	}

	pages, err := parsePages()
	if err != nil {
		return nil, err
	}

	h := &Handler{
		products:  products,
		carts:     carts,
		tracer:    tracenoop.NewTracerProvider().Tracer(""),
		storeName: cfg.StoreName,
		tagline:   cfg.Tagline,
		pages:     pages,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Routes returns the mux serving every storefront endpoint.
func (h *Handler) Routes() http.Handler {
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		// The directory is embedded at build time.
		panic(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.withExistingCart(h.Home))
	mux.HandleFunc("GET /products", h.withExistingCart(h.Products))
	mux.HandleFunc("GET /cart", h.withExistingCart(h.Cart))
	mux.HandleFunc("POST /cart/add", h.withCart(h.AddToCart))
	mux.HandleFunc("POST /cart/remove", h.withExistingCart(h.RemoveFromCart))
	mux.HandleFunc("POST /cart/clear", h.withExistingCart(h.ClearCart))

	mux.HandleFunc("GET /api/products", h.APIListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.APIGetProduct)
	mux.HandleFunc("GET /api/cart", h.withExistingCart(h.APIGetCart))
	mux.HandleFunc("POST /api/cart/items", h.withCart(h.APIAddItem))
	mux.HandleFunc("DELETE /api/cart/items/{id}", h.withExistingCart(h.APIRemoveItem))
	mux.HandleFunc("DELETE /api/cart", h.withExistingCart(h.APIClearCart))

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))
	mux.HandleFunc("/", h.withExistingCart(h.NotFound))
	return mux
}

// cartHandlerFunc is an http.HandlerFunc that also receives the session cart.
type cartHandlerFunc func(w http.ResponseWriter, r *http.Request, store *cart.Store)

// withCart hands fn the session cart, starting a session if needed. Only
// adds use it: a visitor gets a session with their first item.
func (h *Handler) withCart(fn cartHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, store := h.carts.Cart(w, r)
		fn(w, r, store)
	}
}

// withExistingCart hands fn the session cart, or a fresh unregistered empty
// cart when the request has no active session.
func (h *Handler) withExistingCart(fn cartHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, ok := h.carts.Find(r)
		if !ok {
			store = cart.New()
		}
		fn(w, r, store)
	}
}

func parsePages() (map[string]*template.Template, error) {
	funcs := template.FuncMap{
		"money": formatMoney,
	}
	pages := make(map[string]*template.Template)
	for _, name := range []string{"home", "products", "cart", "error"} {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s template", name)
		}
		pages[name] = t
	}
	return pages, nil
}

func formatMoney(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}
