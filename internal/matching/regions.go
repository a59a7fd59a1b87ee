package matching

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	apperrors "carejoa-matching/internal/common/errors"
	"carejoa-matching/internal/models"
)

//go:embed regions.yaml
var regionsYAML []byte

type regionFile struct {
	Regions []struct {
		Sido    string               `yaml:"sido"`
		Aliases []string             `yaml:"aliases"`
		Lat     float64              `yaml:"lat"`
		Lng     float64              `yaml:"lng"`
		Sigungu map[string][]float64 `yaml:"sigungu"`
	} `yaml:"regions"`
}

type sidoEntry struct {
	centroid  models.Coordinate
	districts map[string]models.Coordinate
}

// RegionRegistry knows every valid sido/sigungu pair and its centroid.
type RegionRegistry struct {
	sidos   map[string]*sidoEntry
	aliases map[string]string
}

// LoadRegions parses a region table in the embedded YAML layout.
func LoadRegions(data []byte) (*RegionRegistry, error) {
	var f regionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse regions: %w", err)
	}

	r := &RegionRegistry{
		sidos:   make(map[string]*sidoEntry, len(f.Regions)),
		aliases: make(map[string]string),
	}
	for _, reg := range f.Regions {
		if reg.Sido == "" {
			return nil, fmt.Errorf("parse regions: entry without sido")
		}
		entry := &sidoEntry{
			centroid:  models.Coordinate{Lat: reg.Lat, Lng: reg.Lng},
			districts: make(map[string]models.Coordinate, len(reg.Sigungu)),
		}
		for name, ll := range reg.Sigungu {
			if len(ll) != 2 {
				return nil, fmt.Errorf("parse regions: %s %s needs [lat, lng]", reg.Sido, name)
			}
			entry.districts[name] = models.Coordinate{Lat: ll[0], Lng: ll[1]}
		}
		r.sidos[reg.Sido] = entry
		for _, alias := range reg.Aliases {
			r.aliases[alias] = reg.Sido
		}
	}
	return r, nil
}

var (
	defaultRegionsOnce sync.Once
	defaultRegions     *RegionRegistry
)

// DefaultRegions returns the embedded nationwide region table.
func DefaultRegions() *RegionRegistry {
	defaultRegionsOnce.Do(func() {
		r, err := LoadRegions(regionsYAML)
		if err != nil {
			panic(err)
		}
		defaultRegions = r
	})
	return defaultRegions
}

// Resolve canonicalizes a sido/sigungu pair and returns the reference
// coordinate: the district centroid when known, else the province centroid.
func (r *RegionRegistry) Resolve(sido, sigungu string) (models.Region, models.Coordinate, error) {
	sido = strings.TrimSpace(sido)
	sigungu = strings.TrimSpace(sigungu)

	if sido == "" {
		return models.Region{}, models.Coordinate{}, apperrors.NewValidationError("sido", "is required")
	}
	if canonical, ok := r.aliases[sido]; ok {
		sido = canonical
	}
	entry, ok := r.sidos[sido]
	if !ok {
		return models.Region{}, models.Coordinate{}, apperrors.NewValidationError("sido", fmt.Sprintf("unknown province %q", sido))
	}

	region := models.Region{Sido: sido, Sigungu: sigungu}
	if sigungu == "" {
		return region, entry.centroid, nil
	}
	if len(entry.districts) == 0 {
		return region, entry.centroid, nil
	}
	center, ok := entry.districts[sigungu]
	if !ok {
		return models.Region{}, models.Coordinate{}, apperrors.NewValidationError("sigungu", fmt.Sprintf("unknown district %q in %s", sigungu, sido))
	}
	return region, center, nil
}

// Known reports whether the sido (or one of its aliases) is registered.
func (r *RegionRegistry) Known(sido string) bool {
	if canonical, ok := r.aliases[sido]; ok {
		sido = canonical
	}
	_, ok := r.sidos[sido]
	return ok
}
