package rookie

import (
	"fmt"
	"os"

	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
	"gopkg.in/yaml.v3"
)

// Bucket groups draft slots with similar expected production.
type Bucket string

const (
	BucketR1Early     Bucket = "R1_EARLY"
	BucketR1Late      Bucket = "R1_LATE"
	BucketR2          Bucket = "R2"
	BucketR3          Bucket = "R3"
	BucketDay3        Bucket = "DAY3"
	BucketUDFA        Bucket = "UDFA"
	BucketReplacement Bucket = "REPLACEMENT"
)

// Buckets lists every bucket, earliest picks first.
var Buckets = []Bucket{BucketR1Early, BucketR1Late, BucketR2, BucketR3, BucketDay3, BucketUDFA, BucketReplacement}

// BucketFor maps an overall pick to its bucket. Undrafted players get UDFA; with no
// draft information at all the replacement-level template applies.
func BucketFor(pick *int, undrafted bool) Bucket {
	if pick == nil || *pick <= 0 {
		if undrafted {
			return BucketUDFA
		}
		return BucketReplacement
	}
	switch n := *pick; {
	case n <= 16:
		return BucketR1Early
	case n <= 32:
		return BucketR1Late
	case n <= 64:
		return BucketR2
	case n <= 105:
		return BucketR3
	case n <= 262:
		return BucketDay3
	}
	return BucketUDFA
}

// Templates holds a per-game profile for each bucket and position.
type Templates map[Bucket]map[models.Position]stats.Line

// Lookup returns the template for a bucket and position, falling back to replacement level.
func (t Templates) Lookup(b Bucket, pos models.Position) (stats.Line, Bucket, bool) {
	if l, ok := t[b][pos]; ok {
		return l, b, true
	}
	l, ok := t[BucketReplacement][pos]
	return l, BucketReplacement, ok
}

// first-round-early per-game profiles; later buckets are scaled down from these
var baseProfiles = map[models.Position]stats.Line{
	models.PositionQB: {
		PassAttempts: 32, Completions: 20.5, PassYards: 225, PassTD: 1.3, Interceptions: 0.8,
		RushAttempts: 4.5, RushYards: 22, RushTD: 0.2, FumblesLost: 0.2, SnapShare: 0.95,
	},
	models.PositionRB: {
		RushAttempts: 14, RushYards: 62, RushTD: 0.45,
		Targets: 3.2, Receptions: 2.5, RecYards: 19, RecTD: 0.1, FumblesLost: 0.06, SnapShare: 0.6,
	},
	models.PositionWR: {
		Targets: 7, Receptions: 4.4, RecYards: 58, RecTD: 0.38,
		RushAttempts: 0.3, RushYards: 2, FumblesLost: 0.04, SnapShare: 0.8,
	},
	models.PositionTE: {
		Targets: 5, Receptions: 3.4, RecYards: 36, RecTD: 0.28, FumblesLost: 0.03, SnapShare: 0.7,
	},
}

var bucketScale = map[Bucket]float64{
	BucketR1Early:     1.0,
	BucketR1Late:      0.85,
	BucketR2:          0.7,
	BucketR3:          0.55,
	BucketDay3:        0.4,
	BucketUDFA:        0.25,
	BucketReplacement: 0.3,
}

// DefaultTemplates returns the built-in template table.
func DefaultTemplates() Templates {
	t := make(Templates, len(Buckets))
	for _, b := range Buckets {
		t[b] = make(map[models.Position]stats.Line, len(baseProfiles))
		for pos, l := range baseProfiles {
			scaled := l.Scale(bucketScale[b])
			scaled.SnapShare = l.SnapShare * bucketScale[b]
			t[b][pos] = scaled
		}
	}
	return t
}

// templateFile is the YAML shape: bucket -> position -> stat -> per-game value.
type templateFile map[string]map[string]map[string]float64

// LoadTemplates reads template overrides from a YAML file and layers them over the defaults.
func LoadTemplates(path string) (Templates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rookie templates: %w", err)
	}
	return ParseTemplates(data)
}

// ParseTemplates layers YAML template overrides over the defaults. Stats that are not
// listed keep their default value.
func ParseTemplates(data []byte) (Templates, error) {
	var raw templateFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse rookie templates: %w", err)
	}

	t := DefaultTemplates()
	for bucketName, byPos := range raw {
		b := Bucket(bucketName)
		if _, ok := bucketScale[b]; !ok {
			return nil, fmt.Errorf("unknown rookie bucket %q", bucketName)
		}
		for posName, values := range byPos {
			pos, err := models.ParsePosition(posName)
			if err != nil {
				return nil, fmt.Errorf("bucket %s: %w", b, err)
			}
			l := t[b][pos]
			for name, v := range values {
				s, err := stats.Parse(name)
				if err != nil {
					return nil, fmt.Errorf("bucket %s position %s: %w", b, pos, err)
				}
				if !s.IsCounting() && s != stats.SnapShare {
					return nil, fmt.Errorf("bucket %s position %s: %s is derived and cannot be templated", b, pos, s)
				}
				if err := stats.Validate(s, v); err != nil {
					return nil, fmt.Errorf("bucket %s position %s: %w", b, pos, err)
				}
				l.Set(s, v)
			}
			t[b][pos] = l
		}
	}
	return t, nil
}
