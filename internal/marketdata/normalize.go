package marketdata

import "strings"

// Canonical GICS sector labels.
const (
	SectorEnergy        = "Energy"
	SectorMaterials     = "Materials"
	SectorIndustrials   = "Industrials"
	SectorDiscretionary = "Consumer Discretionary"
	SectorStaples       = "Consumer Staples"
	SectorHealthCare    = "Health Care"
	SectorFinancials    = "Financials"
	SectorTechnology    = "Information Technology"
	SectorCommunication = "Communication Services"
	SectorUtilities     = "Utilities"
	SectorRealEstate    = "Real Estate"
)

// sectorAliases maps the labels providers actually emit, both display names
// and snake_case fund-weighting keys, onto the canonical set.
var sectorAliases = map[string]string{
	"energy":                 SectorEnergy,
	"basic materials":        SectorMaterials,
	"basic_materials":        SectorMaterials,
	"materials":              SectorMaterials,
	"industrials":            SectorIndustrials,
	"consumer cyclical":      SectorDiscretionary,
	"consumer_cyclical":      SectorDiscretionary,
	"consumer discretionary": SectorDiscretionary,
	"consumer defensive":     SectorStaples,
	"consumer_defensive":     SectorStaples,
	"consumer staples":       SectorStaples,
	"healthcare":             SectorHealthCare,
	"health care":            SectorHealthCare,
	"financial services":     SectorFinancials,
	"financial_services":     SectorFinancials,
	"financials":             SectorFinancials,
	"technology":             SectorTechnology,
	"information technology": SectorTechnology,
	"communication services": SectorCommunication,
	"communication_services": SectorCommunication,
	"telecommunications":     SectorCommunication,
	"utilities":              SectorUtilities,
	"real estate":            SectorRealEstate,
	"realestate":             SectorRealEstate,
	"real_estate":            SectorRealEstate,
}

// NormalizeSector maps a provider sector label onto the canonical GICS
// label. Unknown labels fall through to title case so they remain readable.
func NormalizeSector(label string) string {
	key := strings.ToLower(strings.TrimSpace(label))
	if key == "" {
		return ""
	}
	if canonical, ok := sectorAliases[key]; ok {
		return canonical
	}
	return titleCase(key)
}

// NormalizeSectorWeights canonicalizes the keys of a weight map, merging
// aliases that land on the same sector.
func NormalizeSectorWeights(weights map[string]float64) map[string]float64 {
	if len(weights) == 0 {
		return nil
	}
	out := make(map[string]float64, len(weights))
	for label, weight := range weights {
		out[NormalizeSector(label)] += weight
	}
	return out
}

// titleCase capitalizes each word, treating underscores and hyphens as
// word breaks.
func titleCase(s string) string {
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
