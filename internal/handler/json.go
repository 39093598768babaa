package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxBodySize = 1 << 20

var errEmptyBody = errors.New("request body is required")

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError writes the {code, message} error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}

func internalError(ctx context.Context, w http.ResponseWriter, err error) {
	zctx.From(ctx).Error("Request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// decodeObject reads the request body as a single JSON object.
func decodeObject(r *http.Request, field func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return errEmptyBody
	}
	if err := jx.DecodeBytes(body).Obj(field); err != nil {
		return errors.Wrap(err, "invalid JSON body")
	}
	return nil
}

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(strings.TrimSpace(s))
	default:
		return decimal.Zero, errors.New("expected a number")
	}
}

// decodeNullDecimal treats null and "" as absent.
func decodeNullDecimal(d *jx.Decoder) (decimal.NullDecimal, error) {
	switch d.Next() {
	case jx.Null:
		return decimal.NullDecimal{}, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil || strings.TrimSpace(s) == "" {
			return decimal.NullDecimal{}, err
		}
		v, err := decimal.NewFromString(strings.TrimSpace(s))
		return decimal.NullDecimal{Decimal: v, Valid: err == nil}, err
	default:
		v, err := decodeDecimal(d)
		return decimal.NullDecimal{Decimal: v, Valid: err == nil}, err
	}
}

// decodeOptInt treats null as absent.
func decodeOptInt(d *jx.Decoder) (*int, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := d.Int()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// decodeTime accepts RFC 3339 timestamps and plain dates, the latter read as
// midnight UTC.
func decodeTime(d *jx.Decoder) (*time.Time, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, errors.Errorf("invalid time %q", s)
}

func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Float64(v.InexactFloat64())
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}
