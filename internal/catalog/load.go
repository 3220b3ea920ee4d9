package catalog

import (
	_ "embed"
	"io"
	"os"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/paperpen-storefront/internal/domain/product"
)

//go:embed products.json
var defaultProducts []byte

// Default returns the built-in Paper & Pen Co. catalog.
func Default() *Catalog {
	c, err := decode(jx.DecodeBytes(defaultProducts))
	if err != nil {
		panic(errors.Wrap(err, "embedded catalog"))
	}
	return c
}

// LoadFile reads a catalog from a JSON file on disk.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open catalog %s", path)
	}
	defer func() { _ = f.Close() }()

	c, err := Load(f)
	if err != nil {
		return nil, errors.Wrapf(err, "load catalog %s", path)
	}
	return c, nil
}

// Load decodes a JSON array of products:
//
//	[{"id": "...", "name": "...", "description": "...", "price": 1.5, "imageUrl": "..."}]
//
// Unknown fields are ignored. The result is validated as by New.
func Load(r io.Reader) (*Catalog, error) {
	return decode(jx.Decode(r, 4096))
}

func decode(d *jx.Decoder) (*Catalog, error) {
	var products []product.Product
	if err := d.Arr(func(d *jx.Decoder) error {
		p, err := decodeProduct(d)
		if err != nil {
			return errors.Wrapf(err, "product #%d", len(products))
		}
		products = append(products, p)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	if err := d.Skip(); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode catalog: unexpected data after product array")
	}
	return New(products...)
}

func decodeProduct(d *jx.Decoder) (product.Product, error) {
	var p product.Product
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "imageUrl":
			if d.Next() == jx.Null {
				return d.Null()
			}
			p.ImageURL, err = d.Str()
		case "price":
			var n jx.Num
			if n, err = d.Num(); err != nil {
				return errors.Wrap(err, "price")
			}
			p.Price, err = decimal.NewFromString(n.String())
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return p, err
}
