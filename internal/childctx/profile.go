// Package childctx renders a child's profile facts and recent pattern summaries into a
// compact text block for prompt injection.
package childctx

import (
	"fmt"
	"strings"
	"time"

	"github.com/suricare/suricare/internal/models"
)

// Stage is a coarse developmental stage derived from age.
type Stage string

const (
	StageNewborn      Stage = "newborn"
	StageInfant       Stage = "infant"
	StageToddlerEarly Stage = "toddler_early"
	StageToddlerLate  Stage = "toddler_late"
	StagePreschooler  Stage = "preschooler"
)

// Profile holds the static facts about a child used in prompts.
type Profile struct {
	Name      string `json:"name"`
	AgeMonths int    `json:"age_months"`
	Stage     Stage  `json:"developmental_stage"`
	Gender    string `json:"gender"`
}

// ProfileOf derives a Profile from a stored child as of now.
func ProfileOf(c models.Child, now time.Time) Profile {
	months := AgeMonths(c.BirthDate, now)
	return Profile{
		Name:      strings.TrimSpace(c.Name),
		AgeMonths: months,
		Stage:     StageFor(months),
		Gender:    strings.TrimSpace(c.Gender),
	}
}

// AgeMonths returns the number of completed months between birth and now, never negative.
func AgeMonths(birth, now time.Time) int {
	birth, now = birth.UTC(), now.UTC()
	months := (now.Year()-birth.Year())*12 + int(now.Month()) - int(birth.Month())
	if now.Day() < birth.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// StageFor maps an age in months to a developmental stage.
func StageFor(months int) Stage {
	switch {
	case months < 3:
		return StageNewborn
	case months < 12:
		return StageInfant
	case months < 24:
		return StageToddlerEarly
	case months < 36:
		return StageToddlerLate
	default:
		return StagePreschooler
	}
}

// AgeDisplay renders the age as "1 year and 3 months old" or "5 months old".
func (p Profile) AgeDisplay() string {
	if p.AgeMonths < 12 {
		return plural(p.AgeMonths, "month") + " old"
	}
	years, rest := p.AgeMonths/12, p.AgeMonths%12
	if rest == 0 {
		return plural(years, "year") + " old"
	}
	return plural(years, "year") + " and " + plural(rest, "month") + " old"
}

// Line renders the profile header line.
func (p Profile) Line() string {
	gender := p.Gender
	if gender == "" {
		gender = "gender not recorded"
	}
	return fmt.Sprintf("Child: %s, %s (%s), %s", p.Name, p.AgeDisplay(), p.Stage, gender)
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
