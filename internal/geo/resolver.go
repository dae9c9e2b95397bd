package geo

import (
	"context"
	"fmt"
)

// Unknown is the sentinel returned when neither text nor coordinates yield a
// location.
const Unknown = "Unknown"

// Coords carries optional browser coordinates.
type Coords struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Resolver applies the location policy: prefer the gazetteer text match,
// then the reverse geocode, then the raw "lat,lng" string, then Unknown.
type Resolver struct {
	geocoder Geocoder
}

// NewResolver builds a resolver. A nil geocoder disables the coordinate
// strategy (the text strategy and fallbacks still apply).
func NewResolver(geocoder Geocoder) *Resolver {
	return &Resolver{geocoder: geocoder}
}

// ReverseGeocode exposes the coordinate strategy on its own, with the same
// degrade-to-empty behavior. Returns "" when no geocoder was configured.
func (r *Resolver) ReverseGeocode(ctx context.Context, lat, lng float64) string {
	if r.geocoder == nil {
		return ""
	}
	return r.geocoder.ReverseGeocode(ctx, lat, lng)
}

// Resolve returns a display location name. It never fails: external geocode
// errors have already been degraded to the empty string by the Geocoder.
func (r *Resolver) Resolve(ctx context.Context, text string, coords *Coords) string {
	if name := ExtractLocation(text); name != "" {
		return name
	}
	if coords != nil {
		if r.geocoder != nil {
			if name := r.geocoder.ReverseGeocode(ctx, coords.Lat, coords.Lng); name != "" {
				return name
			}
		}
		return fmt.Sprintf("%g,%g", coords.Lat, coords.Lng)
	}
	return Unknown
}
