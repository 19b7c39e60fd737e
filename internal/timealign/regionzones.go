package timealign

import (
	"log/slog"
	"time"
)

// RegionZones maps region codes to IANA zone names. It is constructed once
// at startup from configuration and is immutable afterwards; no package
// global holds zone state.
type RegionZones struct {
	byRegion map[string]string
	fallback string
	logger   *slog.Logger
}

// NewRegionZones builds an immutable region-to-zone table. The mapping is
// copied; later mutation of the input map has no effect. fallback is the
// zone used for regions missing from the table.
func NewRegionZones(mapping map[string]string, fallback string, logger *slog.Logger) *RegionZones {
	copied := make(map[string]string, len(mapping))
	for region, zone := range mapping {
		copied[region] = zone
	}
	return &RegionZones{
		byRegion: copied,
		fallback: fallback,
		logger:   logger,
	}
}

// ZoneName returns the IANA zone name for a region code. Unknown regions
// fall back to the default zone with a logged warning rather than failing:
// a region missing from the table is an operational gap, not a reason to
// stall settlement.
func (z *RegionZones) ZoneName(regionCode string) string {
	if zone, ok := z.byRegion[regionCode]; ok {
		return zone
	}
	z.logger.Warn("timezone not configured for region, using fallback",
		"region_code", regionCode,
		"fallback", z.fallback,
	)
	return z.fallback
}

// Zone resolves the region's zone name against the zone database.
func (z *RegionZones) Zone(regionCode string) (*time.Location, error) {
	return LoadZone(z.ZoneName(regionCode))
}
