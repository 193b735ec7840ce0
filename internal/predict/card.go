package predict

import (
	"fmt"
	"strings"
	"time"

	"wingobot/internal/game"
)

const (
	cardRule = "========================"
	cardSep  = "------------------------"
)

// headerFrame returns the emoji pair for the animated header. The frame is
// keyed to the wall clock second so successive edits look alive.
func headerFrame(now time.Time) (string, string) {
	switch now.Second() % 3 {
	case 0:
		return "🔴", "🟢"
	case 1:
		return "🔺", "🟩"
	default:
		return "📍", "✅"
	}
}

func shortName(cat game.Category) string {
	if cat == game.Cat1Min {
		return "1Min"
	}
	return "30Sec"
}

// pickBox renders a label in its bracketed display form.
func pickBox(l game.Label) string {
	switch l {
	case game.Red:
		return "[ RED ]"
	case game.Green:
		return "[GREEN]"
	case game.Big:
		return "[BIG]"
	case game.Small:
		return "[SMALL]"
	}
	return "[" + string(l) + "]"
}

func renderCard(cat game.Category, nextPeriod int64, pick game.Label, history []game.Prediction, cfg Config, now time.Time) string {
	red, green := headerFrame(now)

	var b strings.Builder
	b.WriteString(cardRule + "\n")
	fmt.Fprintf(&b, "%sWinGo %s - TC%s\n", red, shortName(cat), green)
	b.WriteString(cardRule + "\n")

	fmt.Fprintf(&b, "%d %s %s\n", nextPeriod, cat.Display(), pickBox(pick))
	b.WriteString(cardSep + "\n")

	seen := make(map[int64]bool, len(history))
	for _, p := range history {
		if seen[p.Period] {
			continue
		}
		seen[p.Period] = true
		line := fmt.Sprintf("%d %s %s", p.Period, cat.Display(), pickBox(p.Pick))
		if p.Settled() {
			if *p.Win {
				line += " WIN"
			} else {
				line += " LOSE"
			}
		}
		b.WriteString(line + "\n")
	}

	b.WriteString(cardRule + "\n")
	b.WriteString("CLAIM YOUR WINSTREAK\nBONUS NOW ‼️\n")
	if cfg.Contact != "" {
		fmt.Fprintf(&b, "Contact: %s\n", cfg.Contact)
	}
	b.WriteString(cardRule + "\n")
	if cfg.SiteURL != "" {
		b.WriteString("Official TC website link:\n")
		b.WriteString(cfg.SiteURL + "\n")
		b.WriteString(cardRule + "\n")
	}
	b.WriteString("REACT NOW AND WIN\nTOGETHER")
	return b.String()
}
