package payment

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	MetaDraftKey    = "draft_key"
	MetaPromotionID = "promotion_id"
	MetaTier        = "tier"
)

var ErrInvalidMetadata = errors.New("invalid payment metadata")

// Metadata is the closed set of keys exchanged with the processor for a
// draft promotion. It never carries a sale id.
type Metadata struct {
	DraftKey    string
	PromotionID string
	Tier        string
}

// Map encodes metadata for the processor; an empty promotion id is omitted.
func (m Metadata) Map() map[string]string {
	out := map[string]string{
		MetaDraftKey: m.DraftKey,
		MetaTier:     m.Tier,
	}
	if m.PromotionID != "" {
		out[MetaPromotionID] = m.PromotionID
	}
	return out
}

// DecodeMetadata strictly decodes processor metadata. draft_key and tier are
// required, tier must satisfy knownTier, values must be strings and unknown
// keys are rejected. Every failure wraps ErrInvalidMetadata.
func DecodeMetadata(raw map[string]interface{}, knownTier func(string) bool) (Metadata, error) {
	var m Metadata
	var unknown []string
	for k, v := range raw {
		s, ok := v.(string)
		if !ok && v != nil {
			return Metadata{}, fmt.Errorf("%w: %s is not a string", ErrInvalidMetadata, k)
		}
		switch k {
		case MetaDraftKey:
			m.DraftKey = strings.TrimSpace(s)
		case MetaPromotionID:
			m.PromotionID = strings.TrimSpace(s)
		case MetaTier:
			m.Tier = strings.ToLower(strings.TrimSpace(s))
		default:
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Metadata{}, fmt.Errorf("%w: unknown keys %s", ErrInvalidMetadata, strings.Join(unknown, ","))
	}
	if m.DraftKey == "" {
		return Metadata{}, fmt.Errorf("%w: missing %s", ErrInvalidMetadata, MetaDraftKey)
	}
	if m.Tier == "" {
		return Metadata{}, fmt.Errorf("%w: missing %s", ErrInvalidMetadata, MetaTier)
	}
	if knownTier != nil && !knownTier(m.Tier) {
		return Metadata{}, fmt.Errorf("%w: unknown tier %q", ErrInvalidMetadata, m.Tier)
	}
	return m, nil
}
