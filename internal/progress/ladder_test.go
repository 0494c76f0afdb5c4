package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tahfidz-api/internal/models"
)

func activeWarning(level, week int) models.WarningLetter {
	return models.WarningLetter{ID: "w", Level: level, WeekNumber: week, Status: models.WarningStatusActive}
}

func TestNextWarningClimbsLadder(t *testing.T) {
	state := LadderState{}
	for want := 1; want <= models.MaxWarningLevel; want++ {
		decision, err := NextWarning(state, want+1)
		require.NoError(t, err)
		assert.Nil(t, decision.Replay)
		assert.Equal(t, want, decision.Level)
		assert.Equal(t, want == models.MaxWarningLevel, decision.Terminal)
		state.Active = append(state.Active, activeWarning(decision.Level, want+1))
	}
	state.Terminated = true
	_, err := NextWarning(state, 9)
	assert.ErrorIs(t, err, ErrLadderExhausted)
}

func TestNextWarningReplaysSameWeek(t *testing.T) {
	state := LadderState{Active: []models.WarningLetter{activeWarning(1, 4)}}
	decision, err := NextWarning(state, 4)
	require.NoError(t, err)
	require.NotNil(t, decision.Replay)
	assert.Equal(t, 1, decision.Level)
}

func TestNextWarningReplayWinsOverTerminal(t *testing.T) {
	state := LadderState{
		Active:     []models.WarningLetter{activeWarning(1, 2), activeWarning(2, 3), activeWarning(3, 4)},
		Terminated: true,
	}
	decision, err := NextWarning(state, 4)
	require.NoError(t, err)
	require.NotNil(t, decision.Replay)
	assert.True(t, decision.Terminal)
}

func TestNextWarningAfterCancellationReusesLevel(t *testing.T) {
	cancelled := activeWarning(2, 5)
	cancelled.Status = models.WarningStatusCancelled
	state := LadderState{Active: []models.WarningLetter{activeWarning(1, 4), cancelled}}

	decision, err := NextWarning(state, 6)
	require.NoError(t, err)
	assert.Equal(t, 2, decision.Level)
	assert.False(t, decision.Terminal)
}

func TestNextWarningCancelledWeekIsNotReplayed(t *testing.T) {
	cancelled := activeWarning(1, 4)
	cancelled.Status = models.WarningStatusCancelled
	decision, err := NextWarning(LadderState{Active: []models.WarningLetter{cancelled}}, 4)
	require.NoError(t, err)
	assert.Nil(t, decision.Replay)
	assert.Equal(t, 1, decision.Level)
}

func TestNextWarningRejectsWhenThreeActive(t *testing.T) {
	state := LadderState{Active: []models.WarningLetter{activeWarning(1, 1), activeWarning(2, 2), activeWarning(3, 3)}}
	_, err := NextWarning(state, 7)
	assert.ErrorIs(t, err, ErrLadderExhausted)
}

func TestNextWarningRefillsCancelledLowerRung(t *testing.T) {
	cancelled := activeWarning(1, 2)
	cancelled.Status = models.WarningStatusCancelled
	state := LadderState{Active: []models.WarningLetter{cancelled, activeWarning(2, 3)}}

	decision, err := NextWarning(state, 4)
	require.NoError(t, err)
	assert.Nil(t, decision.Replay)
	assert.Equal(t, 1, decision.Level)
	assert.False(t, decision.Terminal)

	state.Active = append(state.Active, activeWarning(decision.Level, 4))
	decision, err = NextWarning(state, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, decision.Level)
	assert.True(t, decision.Terminal)
}

func TestNextWarningOnlyHigherRungActive(t *testing.T) {
	decision, err := NextWarning(LadderState{Active: []models.WarningLetter{activeWarning(2, 3)}}, 6)
	require.NoError(t, err)
	assert.Equal(t, 1, decision.Level)
	assert.False(t, decision.Terminal)
}
