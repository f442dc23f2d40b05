package target

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/hitzhangjie/wadbg/pkg/cdp"
	"github.com/hitzhangjie/wadbg/pkg/symbol"
)

// buildValueVector converts a wasm scope object's property listing into the
// typed value vector the DWARF evaluator consumes.
//
// Chrome serializes each slot either directly (a plain number, or a bigint
// for i64) or as a nested object whose properties spell a {type, value}
// pair, where value may be a bigint written as decimal digits with a
// trailing `n`.
func buildValueVector(ctx context.Context, rt cdp.Runtime, props []cdp.PropertyDescriptor) ([]symbol.Value, error) {
	values := make([]symbol.Value, 0, len(props))
	for _, prop := range props {
		if prop.Value == nil {
			continue
		}
		obj := *prop.Value
		switch obj.Type {
		case "number":
			f, ok := obj.Value.(float64)
			if !ok {
				return nil, fmt.Errorf("target: slot %s: number without value", prop.Name)
			}
			values = append(values, symbol.ValueI32(int32(f)))
		case "bigint":
			v, err := parseBigIntLiteral(obj.UnserializableValue, obj.Description)
			if err != nil {
				return nil, fmt.Errorf("target: slot %s: %w", prop.Name, err)
			}
			values = append(values, symbol.ValueI64(v))
		case "object":
			if obj.ObjectID == "" {
				continue
			}
			v, err := typedSlotValue(ctx, rt, obj.ObjectID)
			if err != nil {
				return nil, fmt.Errorf("target: slot %s: %w", prop.Name, err)
			}
			values = append(values, v)
		}
	}
	return values, nil
}

// typedSlotValue fetches a wasm value object's {type, value} pair.
func typedSlotValue(ctx context.Context, rt cdp.Runtime, objectID string) (symbol.Value, error) {
	props, err := rt.GetProperties(ctx, objectID)
	if err != nil {
		return symbol.Value{}, err
	}

	var typ string
	var raw *cdp.RemoteObject
	for _, p := range props {
		switch p.Name {
		case "type":
			if p.Value != nil {
				typ, _ = p.Value.Value.(string)
			}
		case "value":
			raw = p.Value
		}
	}
	if typ == "" || raw == nil {
		return symbol.Value{}, fmt.Errorf("value object %s has no type/value pair", objectID)
	}

	switch typ {
	case "i32":
		f, err := scalarNumber(raw)
		return symbol.ValueI32(int32(f)), err
	case "f32":
		f, err := scalarNumber(raw)
		return symbol.ValueF32(float32(f)), err
	case "f64":
		f, err := scalarNumber(raw)
		return symbol.ValueF64(f), err
	case "i64":
		v, err := scalarBigInt(raw)
		return symbol.ValueI64(v), err
	}
	return symbol.Value{}, fmt.Errorf("unknown wasm value type %q", typ)
}

func scalarNumber(obj *cdp.RemoteObject) (float64, error) {
	if f, ok := obj.Value.(float64); ok {
		return f, nil
	}
	if s, ok := obj.Value.(string); ok {
		return strconv.ParseFloat(strings.TrimSuffix(s, "n"), 64)
	}
	return 0, fmt.Errorf("not a number: %v", obj.Value)
}

func scalarBigInt(obj *cdp.RemoteObject) (int64, error) {
	if f, ok := obj.Value.(float64); ok {
		return int64(f), nil
	}
	if s, ok := obj.Value.(string); ok {
		return parseBigIntLiteral(s, "")
	}
	return parseBigIntLiteral(obj.UnserializableValue, obj.Description)
}

// parseBigIntLiteral strips the javascript bigint `n` suffix and parses the
// remaining decimal digits.
func parseBigIntLiteral(candidates ...string) (int64, error) {
	for _, s := range candidates {
		if s == "" {
			continue
		}
		s = strings.TrimSuffix(s, "n")
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			continue
		}
		return v.Int64(), nil
	}
	return 0, fmt.Errorf("no parsable bigint in %q", candidates)
}
