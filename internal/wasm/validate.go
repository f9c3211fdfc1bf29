package wasm

import "fmt"

// Validate runs every structural and type check validateFunction performs on each module-defined function body,
// plus the module-level invariants the decoder itself does not enforce (MVP's single-memory/single-table limit,
// start function shape). Store.Instantiate trusts that Validate (or the decoder's own checks, for a freshly
// decoded binary) has already run.
func (m *Module) Validate(enabledFeatures Features) error {
	if !enabledFeatures.Get(FeatureReferenceTypes) {
		if len(m.TableSection)+int(m.ImportTableCount()) > 1 {
			return fmt.Errorf("multiple tables are not supported without the reference-types feature")
		}
	}
	if len(m.MemorySection)+int(m.ImportMemoryCount()) > 1 {
		return fmt.Errorf("multiple memories are not supported")
	}

	if m.StartSection != nil {
		idx := *m.StartSection
		ft := m.TypeOfFunction(idx)
		if ft == nil {
			return fmt.Errorf("start function index %d out of range", idx)
		}
		if len(ft.Params) != 0 || len(ft.Results) != 0 {
			return fmt.Errorf("start function must have no params or results")
		}
	}

	for i, code := range m.CodeSection {
		if i >= len(m.FunctionSection) {
			return fmt.Errorf("code[%d] has no matching entry in the function section", i)
		}
		typeIdx := m.FunctionSection[i]
		if int(typeIdx) >= len(m.TypeSection) {
			return fmt.Errorf("function[%d] type index %d out of range", i, typeIdx)
		}
		if err := validateFunction(m, &m.TypeSection[typeIdx], code, enabledFeatures); err != nil {
			return fmt.Errorf("function[%d] %w", i, err)
		}
	}
	return nil
}
