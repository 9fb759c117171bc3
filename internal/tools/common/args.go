package common

import (
	"fmt"
	"strings"
)

// CallerFromArgs returns the identity a tool call acts for: the "from"
// argument when present, otherwise "caller". Empty when neither is set.
func CallerFromArgs(args map[string]any) string {
	for _, key := range []string{"from", "caller"} {
		if v, ok := args[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// StringArg returns a trimmed string argument.
func StringArg(args map[string]any, name string) string {
	v, _ := args[name].(string)
	return strings.TrimSpace(v)
}

// RequiredString returns a non-empty string argument or an error naming it.
func RequiredString(args map[string]any, name string) (string, error) {
	v := StringArg(args, name)
	if v == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return v, nil
}

// IntArg returns a numeric argument, or def when absent. JSON numbers
// arrive as float64.
func IntArg(args map[string]any, name string, def int) int {
	switch v := args[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

// BoolArg returns a boolean argument, or false when absent.
func BoolArg(args map[string]any, name string) bool {
	v, _ := args[name].(bool)
	return v
}

// StringOrArray parses a parameter given either as one string or as an
// array of strings.
func StringOrArray(param any, name string) ([]string, error) {
	if param == nil {
		return nil, fmt.Errorf("%s is required", name)
	}

	switch v := param.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("%s cannot be empty", name)
		}
		return []string{strings.TrimSpace(v)}, nil
	case []any:
		if len(v) == 0 {
			return nil, fmt.Errorf("%s cannot be empty", name)
		}
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", name, i)
			}
			if strings.TrimSpace(s) == "" {
				return nil, fmt.Errorf("%s[%d] cannot be empty", name, i)
			}
			out = append(out, strings.TrimSpace(s))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", name)
	}
}
