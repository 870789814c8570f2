package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// yamlToJSON turns a .yaml/.yml config file into JSON bytes; any other
// extension passes through untouched. Both formats then go through one
// strict JSON decode (DisallowUnknownFields), so YAML gets the same
// unknown-key rejection as JSON.
func yamlToJSON(path string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	out, err := json.Marshal(stringifyKeys(doc))
	if err != nil {
		return nil, fmt.Errorf("yaml->json marshal: %w", err)
	}
	return out, nil
}

// stringifyKeys rewrites every map in the decoded document to string keys;
// json.Marshal cannot handle the map[any]any values yaml produces.
func stringifyKeys(doc any) any {
	switch v := doc.(type) {
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[fmt.Sprint(k)] = stringifyKeys(val)
		}
		return out
	case map[string]any:
		for k, val := range v {
			v[k] = stringifyKeys(val)
		}
		return v
	case []any:
		for i := range v {
			v[i] = stringifyKeys(v[i])
		}
		return v
	default:
		return doc
	}
}
