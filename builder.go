package wazero

import (
	"context"
	"fmt"
	"reflect"

	"github.com/wazerun/wazero/api"
	"github.com/wazerun/wazero/internal/wasm"
)

// contextType is used to detect a host function's leading context.Context parameter, which is passed through
// rather than marshalled as a Wasm value type.
var contextType = reflect.TypeOf((*context.Context)(nil)).Elem()

// HostFunctionBuilder defines a host function (in Go), so that a WebAssembly binary (e.g. %.wasm file) can
// import and use it.
//
// Here's an example of an addition function:
//
//	hostModuleBuilder.NewFunctionBuilder().
//		WithFunc(func(ctx context.Context, x, y uint32) uint32 {
//			return x + y
//		}).
//		Export("add")
//
// # Notes
//
//   - This is an interface for decoupling, not third-party implementations. All implementations are in wazero.
type HostFunctionBuilder interface {
	// WithFunc uses reflect.Value to map a go `func` to a WebAssembly compatible signature. An input that isn't
	// a `func` will fail to instantiate.
	//
	// Except for an optional leading context.Context, every parameter and result must map to a WebAssembly
	// numeric value type: uint32, int32, uint64, int64, float32 or float64.
	WithFunc(interface{}) HostFunctionBuilder

	// WithName defines the optional module-local name of this function, e.g. "random_get".
	//
	// Note: This is not required to match the Export name.
	WithName(name string) HostFunctionBuilder

	// WithParameterNames defines optional parameter names of the function signature, e.g. "buf", "buf_len".
	//
	// Note: When defined, names must be provided for all parameters.
	WithParameterNames(names ...string) HostFunctionBuilder

	// WithResultNames defines optional result names of the function signature, e.g. "errno".
	WithResultNames(names ...string) HostFunctionBuilder

	// Export exports this to the HostModuleBuilder as the given name, e.g. "random_get".
	Export(name string) HostModuleBuilder
}

// HostModuleBuilder is a way to define host functions (in Go), so that a WebAssembly binary (e.g. %.wasm file)
// can import and use them.
//
// For example, this defines and instantiates a module named "env" with one function:
//
//	ctx := context.Background()
//	r := wazero.NewRuntime()
//	defer r.Close(ctx) // Close does nothing: env stays open until env.Close is called.
//
//	hello := func() {
//		println("hello!")
//	}
//	env, _ := r.NewHostModuleBuilder("env").
//		NewFunctionBuilder().WithFunc(hello).Export("hello").
//		Instantiate(ctx)
//
// # Notes
//
//   - This is an interface for decoupling, not third-party implementations. All implementations are in wazero.
//   - HostModuleBuilder is mutable: each method returns the same instance for chaining.
//   - methods do not return errors, to allow chaining. Any validation errors are deferred until Compile.
//   - Functions are indexed in order of the first Export of each name, since insertion ordering matters to some
//     ABIs.
type HostModuleBuilder interface {
	// ExportMemory adds linear memory, which a WebAssembly module can import and become available via
	// api.Memory. If a memory is already exported, under any name, this replaces it.
	//
	// Version 1.0 (20191205) of the WebAssembly spec allows at most one memory per module.
	ExportMemory(name string, minPages uint32) HostModuleBuilder

	// ExportMemoryWithMax is like ExportMemory, but can prevent overuse of memory by giving it a fixed maximum
	// in pages (65536 bytes per page).
	ExportMemoryWithMax(name string, minPages, maxPages uint32) HostModuleBuilder

	// NewFunctionBuilder begins the definition of a host function.
	NewFunctionBuilder() HostFunctionBuilder

	// Compile returns a CompiledModule that can be instantiated by Runtime.
	Compile(context.Context) (CompiledModule, error)

	// Instantiate is a convenience that calls Compile, then Runtime.InstantiateModule.
	Instantiate(context.Context) (api.Module, error)
}

// hostFunc stages one HostFunctionBuilder's fields until Export hands it to the owning hostModuleBuilder.
type hostFunc struct {
	fn          interface{}
	name        string
	paramNames  []string
	resultNames []string
}

// hostModuleBuilder implements HostModuleBuilder.
type hostModuleBuilder struct {
	r           *runtime
	moduleName  string
	exportNames []string
	funcs       map[string]*hostFunc

	memoryExportName string
	memoryMin        uint32
	memoryMax        *uint32
}

// hostFunctionBuilder implements HostFunctionBuilder.
type hostFunctionBuilder struct {
	b           *hostModuleBuilder
	fn          interface{}
	name        string
	paramNames  []string
	resultNames []string
}

// WithFunc implements HostFunctionBuilder.WithFunc.
func (h *hostFunctionBuilder) WithFunc(fn interface{}) HostFunctionBuilder {
	h.fn = fn
	return h
}

// WithName implements HostFunctionBuilder.WithName.
func (h *hostFunctionBuilder) WithName(name string) HostFunctionBuilder {
	h.name = name
	return h
}

// WithParameterNames implements HostFunctionBuilder.WithParameterNames.
func (h *hostFunctionBuilder) WithParameterNames(names ...string) HostFunctionBuilder {
	h.paramNames = names
	return h
}

// WithResultNames implements HostFunctionBuilder.WithResultNames.
func (h *hostFunctionBuilder) WithResultNames(names ...string) HostFunctionBuilder {
	h.resultNames = names
	return h
}

// Export implements HostFunctionBuilder.Export.
func (h *hostFunctionBuilder) Export(exportName string) HostModuleBuilder {
	if _, ok := h.b.funcs[exportName]; !ok {
		h.b.exportNames = append(h.b.exportNames, exportName)
	}
	h.b.funcs[exportName] = &hostFunc{fn: h.fn, name: h.name, paramNames: h.paramNames, resultNames: h.resultNames}
	return h.b
}

// ExportMemory implements HostModuleBuilder.ExportMemory.
func (b *hostModuleBuilder) ExportMemory(name string, minPages uint32) HostModuleBuilder {
	b.memoryExportName, b.memoryMin, b.memoryMax = name, minPages, nil
	return b
}

// ExportMemoryWithMax implements HostModuleBuilder.ExportMemoryWithMax.
func (b *hostModuleBuilder) ExportMemoryWithMax(name string, minPages, maxPages uint32) HostModuleBuilder {
	b.memoryExportName, b.memoryMin, b.memoryMax = name, minPages, &maxPages
	return b
}

// NewFunctionBuilder implements HostModuleBuilder.NewFunctionBuilder.
func (b *hostModuleBuilder) NewFunctionBuilder() HostFunctionBuilder {
	return &hostFunctionBuilder{b: b}
}

// Compile implements HostModuleBuilder.Compile.
func (b *hostModuleBuilder) Compile(context.Context) (CompiledModule, error) {
	funcs := make([]wasm.HostFunction, 0, len(b.exportNames))
	for _, exportName := range b.exportNames {
		hf := b.funcs[exportName]
		ft, kind, gv, err := reflectHostFunc(hf.fn)
		if err != nil {
			return nil, fmt.Errorf("func[%s]: %w", exportName, err)
		}

		debugName := hf.name
		if debugName == "" {
			debugName = b.moduleName + "." + exportName
		}

		funcs = append(funcs, wasm.HostFunction{
			ExportName: exportName,
			DebugName:  debugName,
			Kind:       kind,
			Type:       ft,
			GoFunc:     gv,
			ParamNames: hf.paramNames,
		})
	}

	return &compiledHostModule{
		moduleName:       b.moduleName,
		funcs:            funcs,
		memoryExportName: b.memoryExportName,
		memoryMin:        b.memoryMin,
		memoryMax:        b.memoryMax,
	}, nil
}

// Instantiate implements HostModuleBuilder.Instantiate.
func (b *hostModuleBuilder) Instantiate(ctx context.Context) (api.Module, error) {
	compiled, err := b.Compile(ctx)
	if err != nil {
		return nil, err
	}
	return b.r.InstantiateModule(ctx, compiled, NewModuleConfig().WithName(b.moduleName))
}

// reflectHostFunc derives the wasm.FunctionType and wasm.FunctionKind a host function's reflected signature
// maps onto, the inverse of interpreter.decodeParam/encodeResult: those marshal a call against an
// already-derived FunctionType, this derives it once at registration time.
func reflectHostFunc(fn interface{}) (*wasm.FunctionType, wasm.FunctionKind, *reflect.Value, error) {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		return nil, 0, nil, fmt.Errorf("expected a function, got %s", rv.Kind())
	}
	rt := rv.Type()
	if rt.IsVariadic() {
		return nil, 0, nil, fmt.Errorf("variadic functions are not supported")
	}

	kind := wasm.FunctionKindGoNoContext
	argIdx := 0
	if rt.NumIn() > 0 && rt.In(0) == contextType {
		kind = wasm.FunctionKindGoContext
		argIdx = 1
	}

	params := make([]wasm.ValueType, rt.NumIn()-argIdx)
	for i := range params {
		vt, err := goKindToValueType(rt.In(argIdx + i).Kind())
		if err != nil {
			return nil, 0, nil, fmt.Errorf("param[%d]: %w", i, err)
		}
		params[i] = vt
	}

	results := make([]wasm.ValueType, rt.NumOut())
	for i := range results {
		vt, err := goKindToValueType(rt.Out(i).Kind())
		if err != nil {
			return nil, 0, nil, fmt.Errorf("result[%d]: %w", i, err)
		}
		results[i] = vt
	}

	return &wasm.FunctionType{Params: params, Results: results}, kind, &rv, nil
}

func goKindToValueType(k reflect.Kind) (wasm.ValueType, error) {
	switch k {
	case reflect.Uint32, reflect.Int32:
		return wasm.ValueTypeI32, nil
	case reflect.Uint64, reflect.Int64:
		return wasm.ValueTypeI64, nil
	case reflect.Float32:
		return wasm.ValueTypeF32, nil
	case reflect.Float64:
		return wasm.ValueTypeF64, nil
	default:
		return 0, fmt.Errorf("unsupported go type %s", k)
	}
}

// compiledHostModule implements CompiledModule for a module built via HostModuleBuilder: its functions are Go
// closures, never decoded from a wasm.Module, so it skips the Engine.CompileModule caching path entirely.
type compiledHostModule struct {
	moduleName string
	funcs      []wasm.HostFunction

	memoryExportName string
	memoryMin        uint32
	memoryMax        *uint32
}

// Close implements CompiledModule.Close. A host module has nothing cached in an Engine to release.
func (c *compiledHostModule) Close(context.Context) error { return nil }
