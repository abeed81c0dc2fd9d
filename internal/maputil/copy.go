// Package maputil provides shared utilities for deep-copying and merging
// map[string]any documents used by manifest rewriting and project
// configuration overrides.
package maputil

// DeepCopyMap performs a deep copy of a map[string]any.
func DeepCopyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}

	dst := make(map[string]any, len(src))

	for k, v := range src {
		switch val := v.(type) {
		case map[string]any:
			dst[k] = DeepCopyMap(val)
		case []any:
			dst[k] = DeepCopySlice(val)
		default:
			dst[k] = v
		}
	}

	return dst
}

// DeepCopySlice performs a deep copy of a []any.
func DeepCopySlice(src []any) []any {
	if src == nil {
		return nil
	}

	dst := make([]any, len(src))

	for i, v := range src {
		switch val := v.(type) {
		case map[string]any:
			dst[i] = DeepCopyMap(val)
		case []any:
			dst[i] = DeepCopySlice(val)
		default:
			dst[i] = v
		}
	}

	return dst
}

// MergeMaps returns a new map containing base overlaid with overlay.
// Nested maps are merged recursively; any other overlay value replaces
// the base value wholesale. Neither input is mutated.
func MergeMaps(base, overlay map[string]any) map[string]any {
	if base == nil {
		return DeepCopyMap(overlay)
	}

	dst := DeepCopyMap(base)

	for k, v := range overlay {
		if ov, ok := v.(map[string]any); ok {
			if bv, ok := dst[k].(map[string]any); ok {
				dst[k] = MergeMaps(bv, ov)
				continue
			}
		}

		switch val := v.(type) {
		case map[string]any:
			dst[k] = DeepCopyMap(val)
		case []any:
			dst[k] = DeepCopySlice(val)
		default:
			dst[k] = v
		}
	}

	return dst
}
