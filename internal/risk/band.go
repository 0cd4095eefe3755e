package risk

// Band is the coarse level the dashboard colours a score with.
type Band string

const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
)

// Thresholds shared with the dashboard: >=70 red, >=40 yellow, else green.
const (
	HighBandThreshold   = 70
	MediumBandThreshold = 40
)

func BandFor(score int) Band {
	switch {
	case score >= HighBandThreshold:
		return BandHigh
	case score >= MediumBandThreshold:
		return BandMedium
	default:
		return BandLow
	}
}
