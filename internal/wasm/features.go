package wasm

import (
	"fmt"
	"sort"
	"strings"
)

// Features is a bitset of optional WebAssembly behaviors, toggled per Runtime or per Compartment.
//
// Zero is not a valid flag: the set starts at 1 so that an unconfigured Features can never
// accidentally claim a feature is enabled.
type Features uint64

const (
	// FeatureMutableGlobal allows globals to be imported or exported as mutable. Part of the WebAssembly 1.0
	// (20191205) spec's "mutable-global" proposal.
	FeatureMutableGlobal Features = 1 << iota
	// FeatureSignExtensionOps decodes the sign-extension opcodes (i32.extend8_s and friends).
	FeatureSignExtensionOps
	// FeatureMultiValue allows function types and blocks to return more than one value.
	FeatureMultiValue
	// FeatureNonTrappingFloatToIntConversion decodes the saturating truncation opcodes under OpcodeMiscPrefix.
	FeatureNonTrappingFloatToIntConversion
	// FeatureBulkMemoryOperations decodes memory.copy, memory.fill, table.copy and the passive segment opcodes.
	FeatureBulkMemoryOperations
	// FeatureReferenceTypes decodes externref, ref.null, ref.is_null, ref.func and multiple tables.
	FeatureReferenceTypes
	// FeatureSIMD decodes and validates the v128 opcode set. The interpreter executes none of it: a v128 opcode
	// reached at run time traps with TrapCodeUnimplemented.
	FeatureSIMD
	// FeatureExceptionHandling decodes try/catch/throw/rethrow/delegate and the tag section.
	FeatureExceptionHandling
	// FeatureThreads decodes shared memories and the atomic opcode set (memory.atomic.wait/notify, atomic rmw).
	FeatureThreads
	// FeatureTailCall decodes return_call and return_call_indirect.
	FeatureTailCall

	featureNameCount = iota
)

// Features20191205 is the feature set matching the WebAssembly Core 1.0 (20191205) specification: only
// FeatureMutableGlobal.
const Features20191205 = FeatureMutableGlobal

// Features20220419 is the feature set matching the WebAssembly Core 2.0 Working Draft (20220419) snapshot: adds
// sign-extension, multi-value, non-trapping float conversions, bulk memory, reference types and SIMD to 1.0.
const Features20220419 = Features20191205 |
	FeatureSignExtensionOps |
	FeatureMultiValue |
	FeatureNonTrappingFloatToIntConversion |
	FeatureBulkMemoryOperations |
	FeatureReferenceTypes |
	FeatureSIMD

// FeaturesFinished is every feature this implementation supports decoding and validating.
const FeaturesFinished = Features20220419 | FeatureExceptionHandling | FeatureThreads | FeatureTailCall

var featureNames = [featureNameCount]string{
	"mutable-global",
	"sign-extension-ops",
	"multi-value",
	"nontrapping-float-to-int-conversion",
	"bulk-memory-operations",
	"reference-types",
	"simd",
	"exception-handling",
	"threads",
	"tail-call",
}

// Get returns true if the feature is enabled.
func (f Features) Get(feature Features) bool {
	return f&feature != 0
}

// Set assigns the feature the given value.
func (f Features) Set(feature Features, val bool) Features {
	if val {
		return f | feature
	}
	return f &^ feature
}

// Require returns an error if the feature isn't set.
func (f Features) Require(feature Features) error {
	if f.Get(feature) {
		return nil
	}
	return fmt.Errorf("feature %q is disabled", featureName(feature))
}

// featureName returns the name of feature when it is exactly one known bit, or "" otherwise (no bits set,
// more than one bit set, or a bit without a known name).
func featureName(feature Features) string {
	for i := 0; i < featureNameCount; i++ {
		if feature == 1<<i {
			return featureNames[i]
		}
	}
	return ""
}

// String implements fmt.Stringer by printing each set, known feature name, '|'-delimited and sorted.
func (f Features) String() string {
	var names []string
	for i := 0; i < featureNameCount; i++ {
		if f.Get(1 << i) {
			names = append(names, featureNames[i])
		}
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}
