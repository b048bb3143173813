package enrichment

import (
	"encoding/json"
	"strings"

	"github.com/yungbote/docbridge-backend/internal/platform/logger"
)

// Coercions for the loosely typed values json.Unmarshal leaves in
// map[string]any. Parsers stay fail-closed; these only normalize shapes the
// schema already allows.

func floatFromAny(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func intFromAny(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t != float64(int(t)) {
			return 0, false
		}
		return int(t), true
	case json.Number:
		i, err := t.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}

func stringSliceFromAny(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, x := range arr {
		if s, ok := x.(string); ok {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// logModelWarnings surfaces the warnings array every versioned response
// carries.
func logModelWarnings(log *logger.Logger, op, slug string, obj map[string]any) {
	warnings := stringSliceFromAny(obj["warnings"])
	if len(warnings) == 0 {
		return
	}
	log.Info("model reported warnings", "op", op, "slug", slug, "warnings", strings.Join(warnings, "; "))
}
