package wazero

import (
	"bytes"
	"context"
	"fmt"

	"github.com/wazerun/wazero/api"
	"github.com/wazerun/wazero/internal/platform"
	"github.com/wazerun/wazero/internal/wasm"
	"github.com/wazerun/wazero/internal/wasm/binary"
	"github.com/wazerun/wazero/internal/wasm/text"
)

// Runtime allows embedding of WebAssembly modules.
//
// The below is an example of basic initialization:
//
//	ctx := context.Background()
//	r := wazero.NewRuntime()
//	defer r.Close(ctx) // Close does nothing: each Module stays open until closed itself.
//
//	compiled, _ := r.CompileModule(ctx, source)
//	mod, _ := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
//
// # Notes
//
//   - This is an interface for decoupling, not third-party implementations. All implementations are in wazero.
type Runtime interface {
	// CompileModule decodes source, either WebAssembly 1.0 (20191205) Binary Format (beginning with the magic
	// "\0asm") or Text Format (an S-expression beginning with "("), and validates the result against the
	// features enabled on this Runtime.
	//
	// Note: A CompiledModule can be instantiated any number of times (see InstantiateModule), so decoding and
	// compiling a module used by many instances only happens once.
	CompileModule(ctx context.Context, source []byte) (CompiledModule, error)

	// InstantiateModule instantiates compiled, resolving its imports against whatever is already instantiated
	// in this Runtime. When config is nil, NewModuleConfig defaults apply.
	InstantiateModule(ctx context.Context, compiled CompiledModule, config *ModuleConfig) (api.Module, error)

	// NewHostModuleBuilder begins the definition of a host module: one whose functions are implemented in Go,
	// rather than decoded from WebAssembly source.
	NewHostModuleBuilder(moduleName string) HostModuleBuilder

	// Closer is implemented by a Close that does nothing: Modules this Runtime instantiated stay open, and the
	// Engine's compilation cache is not released.
	api.Closer
}

// runtime implements Runtime.
type runtime struct {
	store  *wasm.Store
	config *RuntimeConfig
}

// NewRuntime returns a Runtime interpreting WebAssembly modules with WebAssembly Core 1.0 (20191205) features.
func NewRuntime() Runtime {
	return NewRuntimeWithConfig(NewRuntimeConfigInterpreter())
}

// NewRuntimeWithConfig returns a Runtime configured by rConfig.
func NewRuntimeWithConfig(rConfig *RuntimeConfig) Runtime {
	rc := rConfig.clone()
	engine := rc.newEngine(rc.enabledFeatures)
	store := wasm.NewStore(wasm.NewCompartment(), rc.enabledFeatures, engine)
	return &runtime{store: store, config: rc}
}

// CompileModule implements Runtime.CompileModule.
func (r *runtime) CompileModule(ctx context.Context, source []byte) (CompiledModule, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var module *wasm.Module
	var err error
	if bytes.HasPrefix(source, binary.Magic) {
		module, err = binary.DecodeModule(source, r.config.enabledFeatures)
	} else {
		module, err = text.DecodeModule(source, r.config.enabledFeatures)
	}
	if err != nil {
		return nil, fmt.Errorf("error decoding module: %w", err)
	}

	if err = module.Validate(r.config.enabledFeatures); err != nil {
		return nil, fmt.Errorf("error validating module: %w", err)
	}

	if err = r.store.Engine.CompileModule(ctx, module); err != nil {
		return nil, fmt.Errorf("error compiling module: %w", err)
	}

	return &compiledModule{module: module, compiledEngine: r.store.Engine}, nil
}

// InstantiateModule implements Runtime.InstantiateModule.
func (r *runtime) InstantiateModule(ctx context.Context, compiled CompiledModule, config *ModuleConfig) (api.Module, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if config == nil {
		config = NewModuleConfig()
	}

	switch c := compiled.(type) {
	case *compiledHostModule:
		return r.instantiateHostModule(c, config)
	case *compiledModule:
		return r.instantiateModule(ctx, c, config)
	default:
		return nil, fmt.Errorf("unsupported CompiledModule type %T", compiled)
	}
}

func (r *runtime) instantiateModule(ctx context.Context, c *compiledModule, config *ModuleConfig) (api.Module, error) {
	module := config.replaceImports(c.module)

	name := config.name
	if name == "" {
		if module.NameSection != nil {
			name = module.NameSection.ModuleName
		}
	}

	sys, err := config.toSysContext()
	if err != nil {
		return nil, fmt.Errorf("error creating sys context: %w", err)
	}

	callCtx, err := r.store.Instantiate(ctx, module, name, sys, r.allocateMemory)
	if err != nil {
		return nil, err
	}
	return &moduleInstance{callCtx: callCtx}, nil
}

// allocateMemory is the memAlloc hook passed to Store.Instantiate: it reserves a guarded backing store sized
// to mt, narrowed by RuntimeConfig.WithMemoryMaxPages when mt declares no narrower max of its own.
func (r *runtime) allocateMemory(mt *wasm.MemoryType) (*wasm.MemoryInstance, error) {
	return r.allocateMemoryMinMax(mt.Min, mt.Max, mt.IsShared)
}

// allocateMemoryMinMax reserves a platform.GuardedMemory sized to minPages, capped at the lesser of maxPages
// (if any) and RuntimeConfig.WithMemoryMaxPages.
func (r *runtime) allocateMemoryMinMax(minPages uint32, maxPages *uint32, isShared bool) (*wasm.MemoryInstance, error) {
	cap := r.config.memoryMaxPages
	if maxPages != nil && *maxPages < cap {
		cap = *maxPages
	}
	backing, err := platform.NewGuardedMemory(minPages, cap)
	if err != nil {
		return nil, fmt.Errorf("error allocating memory: %w", err)
	}
	return wasm.NewMemoryInstance(&wasm.MemoryType{Min: minPages, Max: &cap, IsShared: isShared}, backing), nil
}

// NewHostModuleBuilder implements Runtime.NewHostModuleBuilder.
func (r *runtime) NewHostModuleBuilder(moduleName string) HostModuleBuilder {
	return &hostModuleBuilder{r: r, moduleName: moduleName, funcs: map[string]*hostFunc{}}
}

func (r *runtime) instantiateHostModule(c *compiledHostModule, config *ModuleConfig) (api.Module, error) {
	name := config.name
	if name == "" {
		name = c.moduleName
	}

	var memory *wasm.MemoryInstance
	if c.memoryExportName != "" {
		var err error
		if memory, err = r.allocateMemoryMinMax(c.memoryMin, c.memoryMax, false); err != nil {
			return nil, err
		}
	}

	callCtx, err := r.store.InstantiateHostModule(name, c.funcs, c.memoryExportName, memory)
	if err != nil {
		return nil, err
	}
	return &moduleInstance{callCtx: callCtx}, nil
}

// Close implements api.Closer. It does nothing: previously instantiated Modules stay usable and open.
func (r *runtime) Close(context.Context) error {
	return nil
}
