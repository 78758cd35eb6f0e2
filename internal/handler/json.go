package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// decodeBody reads the request body and runs decode over it. The body must
// hold exactly one JSON value.
func decodeBody(w http.ResponseWriter, r *http.Request, decode func(d *jx.Decoder) error) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	if err := jx.DecodeBytes(data).Validate(); err != nil {
		return errors.Wrap(err, "malformed request body")
	}
	if err := decode(jx.DecodeBytes(data)); err != nil {
		return errors.Wrap(err, "malformed request body")
	}
	return nil
}

// writeBodyError answers a decodeBody failure: 413 for oversized bodies and
// 400 otherwise.
func writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

// decodeDecimal accepts a JSON number or a string holding one.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = n.String()
	}
	return decimal.NewFromString(raw)
}

func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.StringFixed(2)))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

// writeJSON writes status and the object produced by encode.
func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError writes the {"code","message"} error body.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(message)
		e.ObjEnd()
	})
}

// writeInternalError logs err and hides it from the client.
func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
