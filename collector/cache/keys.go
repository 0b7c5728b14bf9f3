// Copyright 2025 Baobab Insights
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CanonicalKey derives the content-addressed cache key for a query: the
// source name joined with a hash of the canonicalized parameters. Identical
// logical queries always collide regardless of map ordering, string casing,
// or float noise.
func CanonicalKey(source string, params map[string]any) string {
	h := sha256.New()
	writeCanonical(h, params)
	return source + ":" + hex.EncodeToString(h.Sum(nil))
}

func writeCanonical(h interface{ Write([]byte) (int, error) }, params map[string]any) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s;", k, canonicalValue(params[k]))
	}
}

// canonicalValue renders one parameter value in canonical form: lowercased
// trimmed strings, tolerance-clamped floats, sorted nested maps.
func canonicalValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.ToLower(strings.TrimSpace(x))
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', 6, 64)
	case float64:
		return strconv.FormatFloat(x, 'g', 6, 64)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case []string:
		parts := make([]string, len(x))
		for i, s := range x {
			parts[i] = strings.ToLower(strings.TrimSpace(s))
		}
		return strings.Join(parts, ",")
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = canonicalValue(e)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ":" + canonicalValue(x[k])
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return fmt.Sprintf("%v", x)
	}
}
