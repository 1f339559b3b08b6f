package service

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gallerysync/api/internal/model"
	"github.com/rs/zerolog"
)

// ImageNormalizer coerces the accepted image input shapes into
// model.ImageRecord. Accepted shapes are model.ImageEntry, model.ImageRecord
// (by value or pointer) and generic attribute maps such as decoded JSON.
type ImageNormalizer struct {
	logger zerolog.Logger
}

func NewImageNormalizer(logger zerolog.Logger) *ImageNormalizer {
	return &ImageNormalizer{logger: logger.With().Str("component", "normalizer").Logger()}
}

// NormalizeList normalizes every entry of images, dropping the entries whose
// shape is not recognized.
func (n *ImageNormalizer) NormalizeList(images []any) []model.ImageRecord {
	out := make([]model.ImageRecord, 0, len(images))
	for idx, image := range images {
		rec, ok := n.NormalizeOne(image)
		if !ok {
			n.logger.Warn().
				Int("index", idx).
				Str("type", fmt.Sprintf("%T", image)).
				Msg("unexpected image payload")
			continue
		}
		out = append(out, rec)
	}
	return out
}

// NormalizeOne converts a single entry. The boolean is false when the shape
// is not one of the accepted variants.
func (n *ImageNormalizer) NormalizeOne(image any) (model.ImageRecord, bool) {
	switch v := image.(type) {
	case model.ImageEntry:
		return fromEntry(v), true
	case *model.ImageEntry:
		if v == nil {
			return model.ImageRecord{}, false
		}
		return fromEntry(*v), true
	case model.ImageRecord:
		return fromEntry(model.ImageEntry(v)), true
	case *model.ImageRecord:
		if v == nil {
			return model.ImageRecord{}, false
		}
		return fromEntry(model.ImageEntry(*v)), true
	case map[string]any:
		return fromAttributes(v), true
	case map[string]string:
		attrs := make(map[string]any, len(v))
		for k, s := range v {
			attrs[k] = s
		}
		return fromAttributes(attrs), true
	default:
		return model.ImageRecord{}, false
	}
}

func fromEntry(e model.ImageEntry) model.ImageRecord {
	roles := make([]any, len(e.Roles))
	for i, r := range e.Roles {
		roles[i] = r
	}
	return model.ImageRecord{
		FilePath: strings.TrimSpace(e.FilePath),
		Label:    e.Label,
		Disabled: e.Disabled,
		Position: e.Position,
		Roles:    normalizeRoles(roles),
	}
}

func fromAttributes(row map[string]any) model.ImageRecord {
	path, _ := scalarString(row["file_path"])
	label, _ := scalarString(row["label"])

	var roles []any
	switch r := row["roles"].(type) {
	case []any:
		roles = r
	case []string:
		roles = make([]any, len(r))
		for i, s := range r {
			roles[i] = s
		}
	}

	return model.ImageRecord{
		FilePath: strings.TrimSpace(path),
		Label:    label,
		Disabled: toBool(row["disabled"]),
		Position: toInt(row["position"]),
		Roles:    normalizeRoles(roles),
	}
}

// normalizeRoles lower-cases and trims scalar roles, dropping empty values
// and repeats while keeping first-seen order.
func normalizeRoles(values []any) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := scalarString(v)
		if !ok {
			continue
		}
		role := strings.ToLower(strings.TrimSpace(s))
		if role == "" {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

// scalarString renders a scalar value as a string. Non-scalars report false.
func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	case bool:
		if s {
			return "1", true
		}
		return "", true
	case int:
		return strconv.Itoa(s), true
	case int32:
		return strconv.FormatInt(int64(s), 10), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	default:
		return "", false
	}
}

func toBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	if f, ok := numeric(v); ok {
		return int64(f) != 0
	}
	if s, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "1", "true", "yes", "on":
			return true
		}
	}
	return false
}

func toInt(v any) int {
	f, ok := numeric(v)
	if !ok || math.IsNaN(f) {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	if f < math.MinInt32 {
		return math.MinInt32
	}
	return int(f)
}

// numeric reports the numeric value of v for numbers and numeric strings
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
