package gallery

import (
	"math"
	"strconv"
	"strings"
)

// InitScore converts the stored fish probability into the profile's initial
// score, round(p*100). A missing or malformed value scores 0.
func InitScore(probability string) int {
	p, err := strconv.ParseFloat(strings.TrimSpace(probability), 64)
	if err != nil || math.IsNaN(p) || math.IsInf(p, 0) {
		return 0
	}
	return int(math.Round(p * 100))
}
