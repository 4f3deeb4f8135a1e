// Package sm2 computes spaced-repetition intervals with the classic SM-2
// algorithm. NextInterval is a pure function of a card's review history and
// the folder's settings; identical inputs always yield identical output.
package sm2

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/basalt-app/basalt/internal/domain"
)

// Algorithm is the name this engine registers under in folder settings.
const Algorithm = "sm2"

// Settings holds the SM-2 parameters. Scalar fields are pointers so that a
// settings blob missing a key is distinguishable from one carrying a zero.
type Settings struct {
	// UnitTime is the length of one interval "day" in hours.
	UnitTime *float64 `json:"unit_time" validate:"required"`
	// InitialIntervals are the first and second successful intervals, in days.
	InitialIntervals []float64 `json:"initial_intervals" validate:"required,len=2"`
	InitialEase      *float64  `json:"initial_ease" validate:"required"`
	MinEase          *float64  `json:"min_ease" validate:"required"`
	EaseBonus        *float64  `json:"ease_bonus" validate:"required"`
	// Failing by n grades below 5 costs ease_penalty_linear*n +
	// ease_penalty_quadratic*n^2.
	EasePenaltyLinear    *float64 `json:"ease_penalty_linear" validate:"required"`
	EasePenaltyQuadratic *float64 `json:"ease_penalty_quadratic" validate:"required"`
	// PassThreshold is the lowest score counted as a successful review.
	PassThreshold *int `json:"pass_threshold" validate:"required"`
}

func ptrF(v float64) *float64 { return &v }
func ptrI(v int) *int         { return &v }

// DefaultSettings returns the stock SM-2 parameters seeded into the root
// folder: 24h days, 1 and 6 day initial intervals, ease 2.5 floored at 1.3.
func DefaultSettings() *Settings {
	return &Settings{
		UnitTime:             ptrF(24),
		InitialIntervals:     []float64{1, 6},
		InitialEase:          ptrF(2.5),
		MinEase:              ptrF(1.3),
		EaseBonus:            ptrF(0.1),
		EasePenaltyLinear:    ptrF(0.08),
		EasePenaltyQuadratic: ptrF(0.02),
		PassThreshold:        ptrI(3),
	}
}

var validate = validator.New()

// DecodeSettings parses and validates an sm2_settings blob from a folder's
// settings record.
func DecodeSettings(raw json.RawMessage) (*Settings, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: missing sm2_settings", domain.ErrInvalidConfiguration)
	}
	var s Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	if err := validate.Struct(&s); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	return &s, nil
}

// NextInterval replays the review history chronologically and returns the
// next review interval in hours.
//
// A synthetic passing review is prepended to model the implicit pass at card
// creation; without it the first real review would re-schedule the card
// immediately.
func NextInterval(history []domain.ReviewEntry, s *Settings) (float64, error) {
	if s == nil {
		return 0, fmt.Errorf("%w: nil settings", domain.ErrInvalidConfiguration)
	}
	if err := validate.Struct(s); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}

	i1, i2 := s.InitialIntervals[0], s.InitialIntervals[1]
	ease := *s.InitialEase

	replay := make([]domain.ReviewEntry, 0, len(history)+1)
	replay = append(replay, domain.ReviewEntry{Score: 5, At: "synthetic"})
	replay = append(replay, history...)

	reps := 0
	intervalDays := i1

	for _, entry := range replay {
		if entry.Score < 0 || entry.Score > 5 {
			return 0, fmt.Errorf("%w: score %d must be 0-5", domain.ErrInvalidScore, entry.Score)
		}

		if entry.Score < *s.PassThreshold {
			// Lapse: repetitions and interval reset, ease is untouched.
			reps = 0
			intervalDays = i1
			continue
		}

		// Success: ease moves first, then the interval grows.
		miss := float64(5 - entry.Score)
		delta := *s.EaseBonus - miss*(*s.EasePenaltyLinear+miss**s.EasePenaltyQuadratic)
		ease = math.Max(*s.MinEase, ease+delta)

		switch reps {
		case 0:
			intervalDays = i1
		case 1:
			intervalDays = i2
		default:
			intervalDays = math.Round(intervalDays * ease)
		}
		reps++
	}

	return intervalDays * *s.UnitTime, nil
}
