package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/paperpen-storefront/internal/domain/cart"
)

const meterName = "github.com/xenking/paperpen-storefront"

// cartMetrics counts cart mutations across every session.
type cartMetrics struct {
	mutations  metric.Int64Counter
	itemsAdded metric.Int64Counter
}

func newCartMetrics(meter metric.Meter) (*cartMetrics, error) {
	mutations, err := meter.Int64Counter("storefront.cart.mutations",
		metric.WithDescription("Committed cart mutations by operation"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create mutations counter")
	}
	itemsAdded, err := meter.Int64Counter("storefront.cart.items_added",
		metric.WithDescription("Units added to carts"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create items counter")
	}
	return &cartMetrics{mutations: mutations, itemsAdded: itemsAdded}, nil
}

// registerSessionGauge reports the number of active sessions on every
// collection.
func registerSessionGauge(meter metric.Meter, active func() int) error {
	_, err := meter.Int64ObservableGauge("storefront.sessions.active",
		metric.WithDescription("Sessions currently holding a cart"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(active()))
			return nil
		}),
	)
	return errors.Wrap(err, "create sessions gauge")
}

// observer returns the cart observer attached to the store of one session.
func (m *cartMetrics) observer(lg *zap.Logger, sessionID string) cart.Observer {
	lg = lg.With(zap.String("session", shortID(sessionID)))
	return func(ev cart.Event) {
		ctx := context.Background()
		m.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", string(ev.Op))))
		if ev.Op == cart.OpAdd {
			m.itemsAdded.Add(ctx, int64(ev.Quantity))
		}
		if ce := lg.Check(zap.DebugLevel, "Cart updated"); ce != nil {
			ce.Write(
				zap.String("op", string(ev.Op)),
				zap.String("product_id", ev.ProductID),
				zap.Int("quantity", ev.Quantity),
				zap.Int("total_items", ev.TotalItems),
				zap.String("total_price", ev.TotalPrice.StringFixed(2)),
			)
		}
	}
}

// shortID trims a session ID for logs; the full ID is a bearer secret.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
