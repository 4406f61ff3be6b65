package fee

import "testing"

func TestFee_TierTable(t *testing.T) {
	cases := []struct {
		amount   int64
		duration int
		want     int64
	}{
		{50_000, 1, 4_000},
		{99_999, 1, 4_000},
		{100_000, 1, 6_000},
		{200_000, 1, 6_000},
		{200_001, 1, 10_000},
		{1_000_000, 1, 10_000},
		{2_000_000, 1, 16_000},
		{5_000_000, 1, 36_000},
		{10_000_000, 1, 66_000},
		{30_000_000, 1, 150_000},
		{30_000_001, 1, 300_000},
		{100_000_000, 1, 300_000},
	}
	for _, c := range cases {
		if got := Fee(c.amount, c.duration); got != c.want {
			t.Errorf("Fee(%d, %d) = %d, want %d", c.amount, c.duration, got, c.want)
		}
	}
}

func TestFee_DurationSurcharge(t *testing.T) {
	// 20% of the base fee per started day from 24h onward.
	cases := []struct {
		amount   int64
		duration int
		want     int64
	}{
		{1_000_000, 23, 10_000},
		{1_000_000, 24, 12_000},
		{1_000_000, 25, 14_000}, // 25h starts a second day
		{1_000_000, 48, 14_000},
		{1_000_000, 168, 24_000}, // 7 days
		{50_000, 24, 4_800},
	}
	for _, c := range cases {
		if got := Fee(c.amount, c.duration); got != c.want {
			t.Errorf("Fee(%d, %d) = %d, want %d", c.amount, c.duration, got, c.want)
		}
	}
}

func TestFee_Monotonic(t *testing.T) {
	amounts := []int64{1, 50_000, 99_999, 100_000, 150_000, 200_000, 500_000,
		1_000_000, 1_500_000, 2_000_000, 4_000_000, 5_000_000, 8_000_000,
		10_000_000, 20_000_000, 30_000_000, 50_000_000}
	for _, duration := range []int{1, 12, 24, 72, 168} {
		for i := 1; i < len(amounts); i++ {
			lo := Fee(amounts[i-1], duration)
			hi := Fee(amounts[i], duration)
			if lo > hi {
				t.Errorf("Fee not monotonic at duration %d: Fee(%d)=%d > Fee(%d)=%d",
					duration, amounts[i-1], lo, amounts[i], hi)
			}
		}
	}
}

func TestRewardPoints(t *testing.T) {
	cases := []struct {
		amount int64
		want   int
	}{
		{50_000, 2},
		{100_000, 3},
		{200_000, 3},
		{1_000_000, 5},
		{2_000_000, 8},
		{5_000_000, 16},
		{10_000_000, 32},
		{30_000_000, 75},
		{40_000_000, 150},
	}
	for _, c := range cases {
		if got := RewardPoints(c.amount); got != c.want {
			t.Errorf("RewardPoints(%d) = %d, want %d", c.amount, got, c.want)
		}
	}
}
