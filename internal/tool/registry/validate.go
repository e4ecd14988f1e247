// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package registry

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"search-agent/internal/tool"
)

// checkArgs 逐项检查参数，收集全部违反项而不是遇到第一个就返回
func checkArgs(schema tool.Schema, args map[string]any) []string {
	var violations []string
	for _, name := range schema.Required {
		if v, ok := args[name]; !ok || v == nil {
			violations = append(violations, fmt.Sprintf("missing required argument %q", name))
		}
	}

	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := args[name]
		prop, ok := schema.Properties[name]
		if !ok {
			if !schema.AdditionalProperties {
				violations = append(violations, fmt.Sprintf("unexpected argument %q", name))
			}
			continue
		}
		if v == nil {
			continue
		}
		violations = append(violations, checkValue(name, prop, v)...)
	}
	return violations
}

func checkValue(path string, prop tool.SchemaProperty, v any) []string {
	if len(prop.AnyOf) > 0 {
		types := make([]string, 0, len(prop.AnyOf))
		for _, alt := range prop.AnyOf {
			if len(checkValue(path, alt, v)) == 0 {
				return nil
			}
			types = append(types, alt.Type)
		}
		return []string{fmt.Sprintf("argument %q must be one of: %s, got %s", path, strings.Join(types, " or "), typeName(v))}
	}

	if prop.Type != "" && !hasType(prop.Type, v) {
		return []string{fmt.Sprintf("argument %q must be %s, got %s", path, prop.Type, typeName(v))}
	}

	var out []string
	if len(prop.Enum) > 0 && !inEnum(prop.Enum, v) {
		opts := make([]string, len(prop.Enum))
		for i, e := range prop.Enum {
			opts[i] = fmt.Sprint(e)
		}
		out = append(out, fmt.Sprintf("argument %q must be one of [%s], got %v", path, strings.Join(opts, ", "), v))
	}
	if f, ok := tool.AsFloat(v); ok {
		if prop.Minimum != nil && f < *prop.Minimum {
			out = append(out, fmt.Sprintf("argument %q must be >= %v, got %v", path, *prop.Minimum, f))
		}
		if prop.Maximum != nil && f > *prop.Maximum {
			out = append(out, fmt.Sprintf("argument %q must be <= %v, got %v", path, *prop.Maximum, f))
		}
	}
	if s, ok := v.(string); ok {
		if prop.MinLength != nil && utf8.RuneCountInString(strings.TrimSpace(s)) < *prop.MinLength {
			out = append(out, fmt.Sprintf("argument %q must not be empty", path))
		}
		if prop.Pattern != "" {
			if re, err := regexp.Compile(prop.Pattern); err == nil && !re.MatchString(s) {
				out = append(out, fmt.Sprintf("argument %q must match %s", path, prop.Pattern))
			}
		}
	}
	if items, ok := v.([]any); ok {
		if prop.MinItems != nil && len(items) < *prop.MinItems {
			out = append(out, fmt.Sprintf("argument %q must have at least %d items", path, *prop.MinItems))
		}
		if prop.Items != nil {
			for i, it := range items {
				out = append(out, checkValue(fmt.Sprintf("%s[%d]", path, i), *prop.Items, it)...)
			}
		}
	}
	return out
}

func hasType(want string, v any) bool {
	switch want {
	case "string":
		_, ok := v.(string)
		return ok
	case "integer":
		_, ok := tool.AsInt(v)
		return ok
	case "number":
		_, ok := tool.AsFloat(v)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "array":
		switch v.(type) {
		case []any, []string:
			return true
		}
		return false
	case "object":
		_, ok := v.(map[string]any)
		return ok
	}
	return true
}

func typeName(v any) string {
	switch x := v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any, []string:
		return "array"
	case map[string]any:
		return "object"
	default:
		if _, ok := tool.AsInt(x); ok {
			return "integer"
		}
		if _, ok := tool.AsFloat(x); ok {
			return "number"
		}
		return fmt.Sprintf("%T", v)
	}
}

func inEnum(enum []any, v any) bool {
	for _, e := range enum {
		if fmt.Sprint(e) == fmt.Sprint(v) {
			return true
		}
	}
	return false
}
