package config

// DeepMerge merges override onto base without mutating either input.
// When both sides hold a map at the same key the maps are merged
// recursively; any other collision (including slices) is resolved by
// the override value replacing the base value wholesale.
func DeepMerge(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		if existing, ok := out[k]; ok {
			baseMap, baseOK := existing.(map[string]any)
			overrideMap, overrideOK := v.(map[string]any)
			if baseOK && overrideOK {
				out[k] = DeepMerge(baseMap, overrideMap)
				continue
			}
		}
		out[k] = v
	}
	return out
}
