package storage

import (
	"context"
	"math/rand"
	"time"

	"wingobot/internal/game"
)

// seedWins is the settled-history pattern written for an empty category:
// 7 wins out of 10 so the steering logic starts near its target instead of
// swinging hard on the first few rounds.
var seedWins = []bool{true, true, false, true, true, true, false, true, false, true}

// Seed backfills a short fabricated history for cat when it has no outcomes
// yet. Categories with existing data are left untouched.
func Seed(ctx context.Context, st Store, cat game.Category, rounds int) error {
	next, err := st.NextPeriod(ctx, cat)
	if err != nil {
		return err
	}
	if next != basePeriod {
		return nil
	}
	if rounds <= 0 || rounds > len(seedWins)*3 {
		rounds = len(seedWins)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	picks := []game.Label{game.Red, game.Green, game.Big, game.Small}
	start := time.Now().Add(-time.Duration(rounds) * cat.Round())

	for i := 0; i < rounds; i++ {
		period := next + int64(i)
		pick := picks[i%len(picks)]
		win := seedWins[i%len(seedWins)]

		var color, size game.Label
		if pick.IsColor() {
			color = pick
			size = game.Big
			if rng.Intn(2) == 0 {
				size = game.Small
			}
			if !win {
				color = pick.Opposite()
			}
		} else {
			size = pick
			color = game.Red
			if rng.Intn(2) == 0 {
				color = game.Green
			}
			if !win {
				size = pick.Opposite()
			}
		}
		result := color
		if rng.Intn(2) == 0 {
			result = size
		}

		at := start.Add(time.Duration(i) * cat.Round())
		if err := st.SavePrediction(ctx, game.Prediction{
			Period:   period,
			Category: cat,
			Pick:     pick,
			At:       at,
		}); err != nil {
			return err
		}
		if err := st.AddOutcome(ctx, game.Outcome{
			Period:   period,
			Category: cat,
			Result:   result,
			Color:    color,
			Size:     size,
			At:       at,
		}); err != nil {
			return err
		}
	}
	return nil
}
