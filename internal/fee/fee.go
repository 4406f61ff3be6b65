// Package fee computes platform fees and loyalty rewards for escrow
// transactions.
//
// Both calculations are tiered step functions of the transaction amount.
// The fee additionally carries a duration surcharge: 20% of the base fee
// per started day once the escrow runs for 24 hours or longer. Fees are
// computed once at transaction creation and frozen on the record.
package fee

// tier maps an inclusive upper amount bound to a flat base fee and a
// reward point count. Amounts are VND.
type tier struct {
	upTo   int64 // inclusive; the first tier is exclusive (< 100k)
	fee    int64
	points int
}

var tiers = []tier{
	{upTo: 100_000, fee: 4_000, points: 2}, // strictly below 100k
	{upTo: 200_000, fee: 6_000, points: 3},
	{upTo: 1_000_000, fee: 10_000, points: 5},
	{upTo: 2_000_000, fee: 16_000, points: 8},
	{upTo: 5_000_000, fee: 36_000, points: 16},
	{upTo: 10_000_000, fee: 66_000, points: 32},
	{upTo: 30_000_000, fee: 150_000, points: 75},
}

// Above the last tier.
const (
	topFee    int64 = 300_000
	topPoints       = 150
)

func lookup(amount int64) tier {
	if amount < tiers[0].upTo {
		return tiers[0]
	}
	for _, t := range tiers[1:] {
		if amount <= t.upTo {
			return t
		}
	}
	return tier{fee: topFee, points: topPoints}
}

// Fee returns the platform fee for a transaction of the given amount and
// duration. durationHours >= 24 adds 20% of the base fee per started day.
func Fee(amount int64, durationHours int) int64 {
	f := lookup(amount).fee
	if durationHours >= 24 {
		days := int64((durationHours + 23) / 24)
		f += f * days / 5
	}
	return f
}

// RewardPoints returns the loyalty points credited to the buyer when a
// transaction of the given amount completes.
func RewardPoints(amount int64) int {
	return lookup(amount).points
}
