package project

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// The TOML document is decoded into generic maps first so that validation can
// point at the exact key that is wrong instead of whatever the decoder
// happens to complain about.

func tableAt(raw map[string]interface{}, key, loc string) (map[string]interface{}, error) {
	value, ok := raw[key]
	if !ok {
		return map[string]interface{}{}, nil
	}

	table, ok := value.(map[string]interface{})
	if !ok {
		return nil, eris.Errorf("field `%s` must be a table", loc)
	}

	return table, nil
}

func stringAt(raw map[string]interface{}, key, loc, fallback string) (string, error) {
	value, ok := raw[key]
	if !ok {
		return fallback, nil
	}

	result, ok := value.(string)
	if !ok {
		return "", eris.Errorf("field `%s` must be a string", loc)
	}

	return result, nil
}

func boolAt(raw map[string]interface{}, key, loc string, fallback bool) (bool, error) {
	value, ok := raw[key]
	if !ok {
		return fallback, nil
	}

	result, ok := value.(bool)
	if !ok {
		return false, eris.Errorf("field `%s` must be a boolean", loc)
	}

	return result, nil
}

func stringArrayAt(raw map[string]interface{}, key, loc string) ([]string, error) {
	value, ok := raw[key]
	if !ok {
		return []string{}, nil
	}

	return stringArray(value, loc)
}

func stringArray(value interface{}, loc string) ([]string, error) {
	items, ok := value.([]interface{})
	if !ok {
		return nil, eris.Errorf("field `%s` must be an array of strings", loc)
	}

	result := make([]string, 0, len(items))
	for idx, item := range items {
		str, ok := item.(string)
		if !ok {
			return nil, eris.Errorf("item #%d in field `%s` must be a string", idx+1, loc)
		}
		if str == "" {
			return nil, eris.Errorf("item #%d in field `%s` cannot be an empty string", idx+1, loc)
		}

		result = append(result, str)
	}

	return result, nil
}

func stringMapAt(raw map[string]interface{}, key, loc string) (map[string]string, error) {
	value, ok := raw[key]
	if !ok {
		return map[string]string{}, nil
	}

	table, ok := value.(map[string]interface{})
	if !ok {
		return nil, eris.Errorf("field `%s` must be a table", loc)
	}

	result := make(map[string]string, len(table))
	for name, item := range table {
		str, ok := item.(string)
		if !ok {
			return nil, eris.Errorf("field `%s` must be a string", fmt.Sprintf("%s.%s", loc, name))
		}

		result[name] = str
	}

	return result, nil
}

// tableArrayAt handles both the []map[string]interface{} shape the TOML
// decoder produces for arrays of tables and the []interface{} shape it
// produces for inline arrays.
func tableArrayAt(raw map[string]interface{}, key, loc string) ([]map[string]interface{}, error) {
	value, ok := raw[key]
	if !ok {
		return nil, nil
	}

	switch items := value.(type) {
	case []map[string]interface{}:
		return items, nil
	case []interface{}:
		result := make([]map[string]interface{}, 0, len(items))
		for idx, item := range items {
			table, ok := item.(map[string]interface{})
			if !ok {
				return nil, eris.Errorf("entry #%d in field `%s` must be a table", idx+1, loc)
			}

			result = append(result, table)
		}
		return result, nil
	default:
		return nil, eris.Errorf("field `%s` must be an array of tables", loc)
	}
}
