// Package game holds the WinGo domain types shared by the store, the remote
// feed and the prediction layer.
package game

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Category identifies a game variant (round length).
type Category string

const (
	Cat30Sec Category = "30s"
	Cat1Min  Category = "1m"
)

// Categories lists all known variants in display order.
func Categories() []Category { return []Category{Cat30Sec, Cat1Min} }

// ParseCategory accepts config/callback spellings ("30s", "30sec", "1m",
// "1min", display names with or without spaces).
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "")) {
	case "30s", "30sec", "30second":
		return Cat30Sec, nil
	case "1m", "1min", "1minute":
		return Cat1Min, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Display returns the human form used on cards ("30 SEC" / "1 MIN").
func (c Category) Display() string {
	if c == Cat1Min {
		return "1 MIN"
	}
	return "30 SEC"
}

// Round returns the round length for the category.
func (c Category) Round() time.Duration {
	if c == Cat1Min {
		return time.Minute
	}
	return 30 * time.Second
}

// Label is one of the four bettable outcomes.
type Label string

const (
	Red   Label = "RED"
	Green Label = "GREEN"
	Big   Label = "BIG"
	Small Label = "SMALL"
)

// Labels lists all bettable labels.
func Labels() []Label { return []Label{Red, Green, Big, Small} }

// IsColor reports whether the label is a color (as opposed to a size).
func (l Label) IsColor() bool { return l == Red || l == Green }

// Opposite returns the alternating counterpart: RED<->GREEN, BIG<->SMALL.
func (l Label) Opposite() Label {
	switch l {
	case Red:
		return Green
	case Green:
		return Red
	case Big:
		return Small
	case Small:
		return Big
	}
	return l
}

// RandomLabel picks a uniformly random label using the given source.
func RandomLabel(rng *rand.Rand) Label {
	ls := Labels()
	return ls[rng.Intn(len(ls))]
}

// Outcome is one finished round. Immutable once recorded.
type Outcome struct {
	Period   int64
	Category Category
	Result   Label
	Color    Label
	Size     Label
	At       time.Time
}

// Prediction is the pick published for a round before its outcome is known.
// Result and Win stay nil until the matching outcome arrives; a prediction is
// settled at most once.
type Prediction struct {
	Period   int64
	Category Category
	Pick     Label
	Result   *Label
	Win      *bool
	At       time.Time
}

// Settled reports whether the prediction has been matched against an outcome.
func (p Prediction) Settled() bool { return p.Win != nil }

// Matches reports whether pick counts as a win against the outcome.
// A pick wins when it equals the headline result, or when it names the
// outcome's color or size component.
func Matches(pick Label, o Outcome) bool {
	return pick == o.Result || pick == o.Color || pick == o.Size
}
