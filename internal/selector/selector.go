// Package selector turns download-options descriptors into download items.
package selector

import (
	"fmt"
	"strings"

	"github.com/scenefetch/scenefetch/internal/models"
)

// Mode chooses which products of a scene are requested.
type Mode string

const (
	// ModeBundle requests the full scene bundle.
	ModeBundle Mode = "bundle"
	// ModeBand requests individual band files from the secondary downloads.
	ModeBand Mode = "band"
	// ModeBoth requests the bundle followed by the selected bands.
	ModeBoth Mode = "both"
)

// Modes lists every accepted mode in display order.
var Modes = []Mode{ModeBundle, ModeBand, ModeBoth}

// ParseMode converts user input into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeBundle:
		return ModeBundle, nil
	case ModeBand:
		return ModeBand, nil
	case ModeBoth:
		return ModeBoth, nil
	default:
		return "", fmt.Errorf("invalid download mode %q (expected bundle, band or both)", s)
	}
}

// Select flattens descriptors into download items.
//
// Bundle items are the descriptor itself and carry their own entity id as
// SceneEntityID. Band items come from SecondaryDownloads and point back at the
// parent scene. Only bulk-available products are selected. When filters are
// given, a band is kept if its entity id ends with any of them; filters never
// apply to bundles. Duplicates are preserved.
func Select(descriptors []models.ProductDescriptor, mode Mode, filters []string) []models.DownloadRequestItem {
	var items []models.DownloadRequestItem
	filters = CleanFilters(filters)

	if mode == ModeBundle || mode == ModeBoth {
		for _, d := range descriptors {
			if !d.BulkAvailable {
				continue
			}
			items = append(items, models.DownloadRequestItem{
				EntityID:      d.EntityID,
				ProductID:     d.ProductID,
				SceneEntityID: d.EntityID,
			})
		}
	}

	if mode == ModeBand || mode == ModeBoth {
		for _, d := range descriptors {
			for _, sec := range d.SecondaryDownloads {
				if !sec.BulkAvailable {
					continue
				}
				if len(filters) > 0 && MatchFilter(sec.EntityID, filters) == "" {
					continue
				}
				items = append(items, models.DownloadRequestItem{
					EntityID:      sec.EntityID,
					ProductID:     sec.ProductID,
					SceneEntityID: d.EntityID,
				})
			}
		}
	}

	return items
}

// CleanFilters trims filters and drops empty ones, keeping caller order.
// A list of only empty filters becomes nil, which selects every band.
func CleanFilters(filters []string) []string {
	var out []string
	for _, f := range filters {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// MatchFilter returns the first filter (in caller order) that entityID ends
// with, or "" when none matches.
func MatchFilter(entityID string, filters []string) string {
	for _, f := range filters {
		if f != "" && strings.HasSuffix(entityID, f) {
			return f
		}
	}
	return ""
}

// CorrelationMap maps every item's entity id to its scene entity id. The
// first occurrence of an entity id wins.
func CorrelationMap(items []models.DownloadRequestItem) map[string]string {
	m := make(map[string]string, len(items))
	for _, it := range items {
		if _, ok := m[it.EntityID]; !ok {
			m[it.EntityID] = it.SceneEntityID
		}
	}
	return m
}
