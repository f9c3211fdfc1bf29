package interpreter

import (
	"context"
	"fmt"
	"math"
	"reflect"

	"github.com/wazerun/wazero/internal/wasm"
)

// callWithReflection invokes a host function registered via reflect.Value (wazero.HostFunctionBuilder.WithFunc),
// marshalling the uint64-encoded Wasm stack into the Go func's declared parameter types and back. This mirrors
// the teacher's HostFunctionBuilder.WithFunc, which performs the equivalent reflect.TypeOf/reflect.ValueOf
// marshalling at registration time; here the same shapes are walked at call time since f.GoFunc is already a
// resolved reflect.Value by the time the interpreter reaches it.
func callWithReflection(ctx context.Context, callCtx *wasm.CallContext, f *wasm.FunctionInstance, params []uint64) ([]uint64, error) {
	fv := f.GoFunc
	if fv == nil {
		return nil, fmt.Errorf("host function %s has no implementation", f.DebugName)
	}
	ft := fv.Type()

	argIdx := 0
	in := make([]reflect.Value, ft.NumIn())
	if f.Kind == wasm.FunctionKindGoContext {
		in[0] = reflect.ValueOf(callCtx.WithContext(ctx).Context())
		argIdx = 1
	}

	if len(params) != len(f.Type.Params) {
		return nil, fmt.Errorf("host function %s: expected %d params, got %d", f.DebugName, len(f.Type.Params), len(params))
	}
	for i, vt := range f.Type.Params {
		target := ft.In(argIdx + i)
		rv, err := decodeParam(target, vt, params[i])
		if err != nil {
			return nil, fmt.Errorf("host function %s: param[%d]: %w", f.DebugName, i, err)
		}
		in[argIdx+i] = rv
	}

	out := fv.Call(in)
	if len(out) != len(f.Type.Results) {
		return nil, fmt.Errorf("host function %s: expected %d results, got %d", f.DebugName, len(f.Type.Results), len(out))
	}
	results := make([]uint64, len(out))
	for i, o := range out {
		encoded, err := encodeResult(f.Type.Results[i], o)
		if err != nil {
			return nil, fmt.Errorf("host function %s: result[%d]: %w", f.DebugName, i, err)
		}
		results[i] = encoded
	}
	return results, nil
}

// decodeParam converts a single uint64-encoded Wasm value v (whose Wasm type is vt) into a reflect.Value of
// the Go type the host function actually declared for that parameter position.
func decodeParam(target reflect.Type, vt wasm.ValueType, v uint64) (reflect.Value, error) {
	switch vt {
	case wasm.ValueTypeI32:
		switch target.Kind() {
		case reflect.Uint32:
			return reflect.ValueOf(uint32(v)).Convert(target), nil
		case reflect.Int32:
			return reflect.ValueOf(int32(v)).Convert(target), nil
		}
	case wasm.ValueTypeI64:
		switch target.Kind() {
		case reflect.Uint64:
			return reflect.ValueOf(v).Convert(target), nil
		case reflect.Int64:
			return reflect.ValueOf(int64(v)).Convert(target), nil
		}
	case wasm.ValueTypeF32:
		if target.Kind() == reflect.Float32 {
			return reflect.ValueOf(math.Float32frombits(uint32(v))).Convert(target), nil
		}
	case wasm.ValueTypeF64:
		if target.Kind() == reflect.Float64 {
			return reflect.ValueOf(math.Float64frombits(v)).Convert(target), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("cannot map wasm value type %s onto go type %s", wasm.ValueTypeName(vt), target)
}

// encodeResult is the inverse of decodeParam: it packs a host function's returned reflect.Value back into the
// uint64 encoding the interpreter's value stack uses for vt.
func encodeResult(vt wasm.ValueType, rv reflect.Value) (uint64, error) {
	switch vt {
	case wasm.ValueTypeI32:
		switch rv.Kind() {
		case reflect.Uint32:
			return uint64(uint32(rv.Uint())), nil
		case reflect.Int32:
			return uint64(uint32(rv.Int())), nil
		}
	case wasm.ValueTypeI64:
		switch rv.Kind() {
		case reflect.Uint64:
			return rv.Uint(), nil
		case reflect.Int64:
			return uint64(rv.Int()), nil
		}
	case wasm.ValueTypeF32:
		if rv.Kind() == reflect.Float32 {
			return uint64(math.Float32bits(float32(rv.Float()))), nil
		}
	case wasm.ValueTypeF64:
		if rv.Kind() == reflect.Float64 {
			return math.Float64bits(rv.Float()), nil
		}
	}
	return 0, fmt.Errorf("cannot map go type %s onto wasm value type %s", rv.Type(), wasm.ValueTypeName(vt))
}
