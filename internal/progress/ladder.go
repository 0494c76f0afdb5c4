package progress

import (
	"errors"

	"github.com/noah-isme/tahfidz-api/internal/models"
)

// ErrLadderExhausted is returned once a learner reached the terminal rung.
var ErrLadderExhausted = errors.New("warning ladder exhausted")

// LadderState is a learner's ladder as read under the per-learner write lock.
type LadderState struct {
	Active     []models.WarningLetter
	Terminated bool
}

// LadderDecision is the outcome of an issuance request.
type LadderDecision struct {
	// Replay is set when an active warning already covers the requested week.
	Replay   *models.WarningLetter
	Level    int
	Terminal bool
}

// NextWarning decides the level of a new warning for week. The new warning takes the lowest
// rung no active warning holds, so a cancelled rung is refilled before the ladder climbs and a
// new level never collides with an active one. The terminal rung is reached only while every
// lower rung is active. An active warning for the same week is replayed instead of issued twice.
func NextWarning(state LadderState, week int) (LadderDecision, error) {
	for i := range state.Active {
		if state.Active[i].Active() && state.Active[i].WeekNumber == week {
			replay := state.Active[i]
			return LadderDecision{Replay: &replay, Level: replay.Level, Terminal: replay.Level == models.MaxWarningLevel}, nil
		}
	}
	if state.Terminated {
		return LadderDecision{}, ErrLadderExhausted
	}

	held := make(map[int]bool, len(state.Active))
	for _, w := range state.Active {
		if w.Active() {
			held[w.Level] = true
		}
	}
	for level := 1; level <= models.MaxWarningLevel; level++ {
		if !held[level] {
			return LadderDecision{Level: level, Terminal: level == models.MaxWarningLevel}, nil
		}
	}
	return LadderDecision{}, ErrLadderExhausted
}
