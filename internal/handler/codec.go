package handler

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/food-orders/internal/domain/catalog"
	"github.com/xenking/food-orders/internal/domain/order"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// errMalformed marks a request body that is not the expected JSON shape.
var errMalformed = errors.New("malformed request body")

func malformed(err error) error {
	return errors.Wrap(errMalformed, err.Error())
}

func readBody(r *http.Request) (*jx.Decoder, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if len(body) == 0 {
		return nil, malformed(errors.New("empty body"))
	}
	return jx.DecodeBytes(body), nil
}

// createOrderBody is {"foods":[{"food":id,"count":n}],"address":...,"phoneToContact":...}.
type createOrderBody struct {
	Items          []order.LineItem
	Address        string
	PhoneToContact string
}

func decodeCreateOrder(d *jx.Decoder) (createOrderBody, error) {
	var b createOrderBody
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "foods":
			return d.Arr(func(d *jx.Decoder) error {
				var item order.LineItem
				if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
					var err error
					switch string(key) {
					case "food":
						item.FoodID, err = d.Str()
					case "count":
						item.Count, err = d.Int()
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				b.Items = append(b.Items, item)
				return nil
			})
		case "address":
			v, err := d.Str()
			b.Address = v
			return err
		case "phoneToContact":
			v, err := d.Str()
			b.PhoneToContact = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return b, malformed(err)
	}
	return b, nil
}

// decodeRatings reads {"ratings":[{"food":id,"rating":n}]}. Negative values
// are rejected.
func decodeRatings(d *jx.Decoder) ([]order.FoodRating, error) {
	var ratings []order.FoodRating
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "ratings" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			var r order.FoodRating
			if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				var err error
				switch string(key) {
				case "food":
					r.FoodID, err = d.Str()
				case "rating":
					r.Value, err = d.Float64()
				default:
					err = d.Skip()
				}
				return err
			}); err != nil {
				return err
			}
			if r.Value < 0 {
				return errors.Errorf("rating for %s must not be negative", r.FoodID)
			}
			ratings = append(ratings, r)
			return nil
		})
	})
	if err != nil {
		return nil, malformed(err)
	}
	return ratings, nil
}

// decodeNewState reads {"newState":"delivering"}.
func decodeNewState(d *jx.Decoder) (order.State, error) {
	var raw string
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "newState" {
			return d.Skip()
		}
		v, err := d.Str()
		raw = v
		return err
	})
	if err != nil {
		return "", malformed(err)
	}
	return order.State(strings.TrimSpace(raw)), nil
}

func (h *Handler) encodeDetails(e *jx.Encoder, d *order.Details) {
	o := d.Order
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)

	e.FieldStart("restaurant")
	if d.Restaurant != nil {
		h.encodeRestaurant(e, d.Restaurant)
	} else {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(o.RestaurantID)
		e.ObjEnd()
	}
	e.FieldStart("user")
	e.Str(o.UserID)

	e.FieldStart("foods")
	e.ArrStart()
	for _, l := range d.Lines {
		e.ObjStart()
		e.FieldStart("count")
		e.Int(l.Count)
		e.FieldStart("food")
		if l.Food != nil {
			h.encodeFood(e, l.Food)
		} else {
			e.ObjStart()
			e.FieldStart("id")
			e.Str(l.FoodID)
			e.ObjEnd()
		}
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("address")
	e.Str(o.Address)
	e.FieldStart("phoneToContact")
	e.Str(o.PhoneToContact)
	e.FieldStart("totalPrice")
	e.Num(jx.Num(o.TotalPrice.StringFixed(2)))
	e.FieldStart("totalSum")
	e.Num(jx.Num(o.TotalSum.StringFixed(2)))
	e.FieldStart("state")
	e.Str(string(o.State))
	e.FieldStart("allowedNextStates")
	e.ArrStart()
	for _, s := range order.AllowedNextStates(o.State) {
		e.Str(string(s))
	}
	e.ArrEnd()
	e.FieldStart("isRated")
	e.Bool(o.IsRated)
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	e.FieldStart("updatedAt")
	e.Str(o.UpdatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}

func (h *Handler) encodeRestaurant(e *jx.Encoder, r *catalog.Restaurant) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(r.ID)
	e.FieldStart("name")
	e.Str(r.Name)
	e.FieldStart("city")
	e.Str(r.City)
	e.FieldStart("address")
	e.Str(r.Address)
	e.FieldStart("image")
	e.Str(h.imageURL(r.Image))
	encodeRating(e, r.Rating)
	e.ObjEnd()
}

func (h *Handler) encodeFood(e *jx.Encoder, f *catalog.Food) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(f.ID)
	e.FieldStart("name")
	e.Str(f.Name)
	e.FieldStart("category")
	e.Str(f.Category)
	e.FieldStart("image")
	e.Str(h.imageURL(f.Image))
	e.FieldStart("price")
	e.Num(jx.Num(f.Price.StringFixed(2)))
	e.FieldStart("discountPercentage")
	e.Num(jx.Num(f.DiscountPercentage.String()))
	encodeRating(e, f.Rating)
	e.ObjEnd()
}

func encodeRating(e *jx.Encoder, r catalog.Rating) {
	e.FieldStart("rating")
	e.Float64(r.Mean)
	e.FieldStart("ratingCount")
	e.Int(r.Count)
}

func (h *Handler) encodeList(e *jx.Encoder, res *order.ListResult) {
	e.ObjStart()
	e.FieldStart("count")
	e.Int(res.Count)
	e.FieldStart("orders")
	e.ArrStart()
	for i := range res.Orders {
		h.encodeDetails(e, &res.Orders[i])
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeRateResult(e *jx.Encoder, res *order.RateResult) {
	e.ObjStart()
	e.FieldStart("applied")
	e.ArrStart()
	for _, r := range res.Applied {
		e.ObjStart()
		e.FieldStart("food")
		e.Str(r.FoodID)
		e.FieldStart("rating")
		e.Float64(r.Value)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("discarded")
	e.Int(res.Discarded)
	e.FieldStart("restaurant")
	e.ObjStart()
	encodeRating(e, res.Restaurant)
	e.ObjEnd()
	e.ObjEnd()
}

// imageURL prefixes relative image paths with the configured base URL.
func (h *Handler) imageURL(path string) string {
	if h.imageBaseURL == "" || path == "" || strings.Contains(path, "://") {
		return path
	}
	return strings.TrimRight(h.imageBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
