package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/hkadk/hapcore/internal/hap/herr"
	"github.com/hkadk/hapcore/internal/platform/jsonreader"
)

// NumericValue types a JSON number literal per spec §8 scenario 5:
// negative values are signed, everything else is unsigned, and the
// magnitude must fit in 64 bits.
type NumericValue struct {
	Signed   int64
	Unsigned uint64
	IsSigned bool
}

// WriteContext is one characteristic write extracted from a
// /characteristics PUT body (spec §8 scenario 3).
type WriteContext struct {
	AID   uint64
	IID   uint64
	Value NumericValue
}

// WriteRequest is the parsed form of a /characteristics PUT body.
type WriteRequest struct {
	Characteristics []WriteContext
	PID             uint64
	PIDValid        bool
}

// ParseWriteRequest decodes a /characteristics write body (spec §8
// scenarios 3–5): a top-level object with a "characteristics" array of
// {aid,iid,value} members and an optional top-level "pid" number. A
// second top-level "pid" member is rejected (scenario 4).
func ParseWriteRequest(body []byte) (WriteRequest, error) {
	const op = "server.ParseWriteRequest"
	r := jsonreader.NewDecoderReader(bytes.NewReader(body))

	ev, err := r.NextEvent()
	if err != nil {
		return WriteRequest{}, herr.Wrap(op, herr.KindInvalidData, err)
	}
	if ev.Kind != jsonreader.EventBeginObject {
		return WriteRequest{}, herr.New(op, herr.KindInvalidData, "body is not a JSON object")
	}

	var req WriteRequest
	sawPID := false

	for {
		ev, err := r.NextEvent()
		if err != nil {
			return WriteRequest{}, herr.Wrap(op, herr.KindInvalidData, err)
		}
		if ev.Kind == jsonreader.EventEndObject {
			break
		}
		if ev.Kind != jsonreader.EventKey {
			return WriteRequest{}, herr.New(op, herr.KindInvalidData, "expected an object member key")
		}

		switch ev.Key {
		case "characteristics":
			contexts, err := parseCharacteristicsArray(r)
			if err != nil {
				return WriteRequest{}, err
			}
			req.Characteristics = contexts
		case "pid":
			if sawPID {
				return WriteRequest{}, herr.New(op, herr.KindInvalidData, "duplicate pid member")
			}
			sawPID = true
			val, err := readNumericMember(r, "pid")
			if err != nil {
				return WriteRequest{}, err
			}
			if val.IsSigned {
				return WriteRequest{}, herr.New(op, herr.KindInvalidData, "pid must not be negative")
			}
			req.PID = val.Unsigned
			req.PIDValid = true
		default:
			if err := skipValue(r); err != nil {
				return WriteRequest{}, err
			}
		}
	}

	return req, nil
}

func parseCharacteristicsArray(r jsonreader.Reader) ([]WriteContext, error) {
	const op = "server.ParseWriteRequest"
	ev, err := r.NextEvent()
	if err != nil {
		return nil, herr.Wrap(op, herr.KindInvalidData, err)
	}
	if ev.Kind != jsonreader.EventBeginArray {
		return nil, herr.New(op, herr.KindInvalidData, "characteristics must be an array")
	}

	var out []WriteContext
	for {
		ev, err := r.NextEvent()
		if err != nil {
			return nil, herr.Wrap(op, herr.KindInvalidData, err)
		}
		if ev.Kind == jsonreader.EventEndArray {
			return out, nil
		}
		if ev.Kind != jsonreader.EventBeginObject {
			return nil, herr.New(op, herr.KindInvalidData, "characteristics elements must be objects")
		}
		ctx, err := parseCharacteristicObject(r)
		if err != nil {
			return nil, err
		}
		out = append(out, ctx)
	}
}

func parseCharacteristicObject(r jsonreader.Reader) (WriteContext, error) {
	const op = "server.ParseWriteRequest"
	var ctx WriteContext
	for {
		ev, err := r.NextEvent()
		if err != nil {
			return WriteContext{}, herr.Wrap(op, herr.KindInvalidData, err)
		}
		if ev.Kind == jsonreader.EventEndObject {
			return ctx, nil
		}
		if ev.Kind != jsonreader.EventKey {
			return WriteContext{}, herr.New(op, herr.KindInvalidData, "expected a characteristic member key")
		}

		switch ev.Key {
		case "aid":
			val, err := readNumericMember(r, "aid")
			if err != nil {
				return WriteContext{}, err
			}
			ctx.AID = val.Unsigned
		case "iid":
			val, err := readNumericMember(r, "iid")
			if err != nil {
				return WriteContext{}, err
			}
			ctx.IID = val.Unsigned
		case "value":
			val, err := readNumericMember(r, "value")
			if err != nil {
				return WriteContext{}, err
			}
			ctx.Value = val
		default:
			if err := skipValue(r); err != nil {
				return WriteContext{}, err
			}
		}
	}
}

func readNumericMember(r jsonreader.Reader, name string) (NumericValue, error) {
	const op = "server.ParseWriteRequest"
	ev, err := r.NextEvent()
	if err != nil {
		return NumericValue{}, herr.Wrap(op, herr.KindInvalidData, err)
	}
	if ev.Kind != jsonreader.EventNumber {
		return NumericValue{}, herr.New(op, herr.KindInvalidData, fmt.Sprintf("%s must be a number", name))
	}
	val, err := parseNumeric(ev.Number)
	if err != nil {
		return NumericValue{}, herr.Wrap(op, herr.KindInvalidData, err)
	}
	return val, nil
}

// parseNumeric types a JSON number literal per spec §8 scenario 5:
// negative literals are signed and must fit in an int64; everything else
// is unsigned and must fit in a uint64.
func parseNumeric(n json.Number) (NumericValue, error) {
	s := string(n)
	if len(s) > 0 && s[0] == '-' {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return NumericValue{}, fmt.Errorf("signed value %q does not fit in 64 bits: %w", s, err)
		}
		return NumericValue{Signed: v, IsSigned: true}, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return NumericValue{}, fmt.Errorf("unsigned value %q does not fit in 64 bits: %w", s, err)
	}
	return NumericValue{Unsigned: v}, nil
}

// skipValue discards one complete JSON value (scalar, object, or array)
// for a member the write-request parser does not recognize.
func skipValue(r jsonreader.Reader) error {
	const op = "server.ParseWriteRequest"
	ev, err := r.NextEvent()
	if err != nil {
		return herr.Wrap(op, herr.KindInvalidData, err)
	}
	switch ev.Kind {
	case jsonreader.EventBeginObject:
		for depth := 1; depth > 0; {
			ev, err := r.NextEvent()
			if err != nil {
				return herr.Wrap(op, herr.KindInvalidData, err)
			}
			switch ev.Kind {
			case jsonreader.EventBeginObject:
				depth++
			case jsonreader.EventEndObject:
				depth--
			}
		}
	case jsonreader.EventBeginArray:
		for depth := 1; depth > 0; {
			ev, err := r.NextEvent()
			if err != nil {
				return herr.Wrap(op, herr.KindInvalidData, err)
			}
			switch ev.Kind {
			case jsonreader.EventBeginArray:
				depth++
			case jsonreader.EventEndArray:
				depth--
			}
		}
	}
	return nil
}
