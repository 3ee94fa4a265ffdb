package scoring

// dealSizeTiers is a step function on a roughly logarithmic scale. Each tier is
// inclusive of its upper bound; anything above the last bound scores 100.
var dealSizeTiers = []struct {
	upTo  float64
	score float64
}{
	{10_000, 20}, // strictly below 10K, see DealSizeScore
	{50_000, 40},
	{100_000, 50},
	{250_000, 60},
	{500_000, 70},
	{1_000_000, 80},
	{5_000_000, 90},
	{10_000_000, 95},
}

// DealSizeScore maps an amount to its 0-100 deal-size tier
func DealSizeScore(amount float64) float64 {
	if amount < dealSizeTiers[0].upTo {
		return dealSizeTiers[0].score
	}
	for _, tier := range dealSizeTiers[1:] {
		if amount <= tier.upTo {
			return tier.score
		}
	}
	return 100
}
