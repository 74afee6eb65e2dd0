package patchlib

import "sort"

// Variants maps a hardware variant to a value which differs between them, such
// as a struct field offset.
type Variants[V any] map[string]V

// Get returns the value for variant.
func (v Variants[V]) Get(variant string) (V, error) {
	return v.Lookup("", variant)
}

// Lookup is like Get, but the error carries the operation name.
func (v Variants[V]) Lookup(op, variant string) (V, error) {
	x, ok := v[variant]
	if !ok {
		var zero V
		return zero, &UnsupportedVariantError{Op: op, Variant: variant, Known: sortedKeys(v)}
	}
	return x, nil
}

func sortedKeys[V any](m map[string]V) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}
