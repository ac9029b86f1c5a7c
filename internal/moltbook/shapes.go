package moltbook

// The API wraps payloads inconsistently: some deployments return a bare
// array, others an envelope object whose payload key has changed over time.
// ExtractList and ExtractObject absorb that drift. Both try candidate keys
// in order and fall back to empty values; neither ever fails.

// ExtractList returns the first list found in resp. A bare array is
// returned directly; an envelope object is probed with keys in order.
// Non-object items are dropped.
func ExtractList(resp any, keys ...string) []map[string]any {
	switch v := resp.(type) {
	case []any:
		return onlyObjects(v)
	case map[string]any:
		for _, k := range keys {
			if list, ok := v[k].([]any); ok {
				return onlyObjects(list)
			}
		}
	}
	return nil
}

// ExtractObject returns the first object found under keys. When no key
// matches but resp itself is an object, resp is returned as-is; anything
// else yields an empty map.
func ExtractObject(resp any, keys ...string) map[string]any {
	m, ok := resp.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	for _, k := range keys {
		if obj, ok := m[k].(map[string]any); ok {
			return obj
		}
	}
	return m
}

func onlyObjects(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}
