package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubmissionStatusTransitions(t *testing.T) {
	require.True(t, SubmissionStatusSubmitted.CanTransitionTo(SubmissionStatusGraded))
	require.True(t, SubmissionStatusGraded.CanTransitionTo(SubmissionStatusGraded))
	require.True(t, SubmissionStatusGraded.CanTransitionTo(SubmissionStatusReturned))
	require.True(t, SubmissionStatusReturned.CanTransitionTo(SubmissionStatusResubmitted))
	require.True(t, SubmissionStatusResubmitted.CanTransitionTo(SubmissionStatusGraded))

	require.False(t, SubmissionStatusSubmitted.CanTransitionTo(SubmissionStatusResubmitted))
	require.False(t, SubmissionStatusGraded.CanTransitionTo(SubmissionStatusSubmitted))
	require.False(t, SubmissionStatusResubmitted.CanTransitionTo(SubmissionStatusResubmitted))
	require.False(t, SubmissionStatus("archived").CanTransitionTo(SubmissionStatusGraded))
	require.False(t, SubmissionStatus("archived").Valid())
}

func TestEffectiveScorePrefersFinalScore(t *testing.T) {
	submission := Submission{Score: 6}
	require.Equal(t, 6.0, submission.EffectiveScore())
	require.False(t, submission.IsGraded())

	final := 4.5
	submission.FinalScore = &final
	require.Equal(t, 4.5, submission.EffectiveScore())
}

func TestAssessmentPolicies(t *testing.T) {
	zero := 0
	two := 2
	penalty := 10.0
	assessment := Assessment{AttemptsAllowed: &zero}
	require.False(t, assessment.HasAttemptLimit())
	require.False(t, assessment.HasLatePenalty())

	assessment.AttemptsAllowed = &two
	assessment.LatePenaltyPercentPerDay = &penalty
	assessment.Questions = []Question{{Points: 2}, {Points: 3.5}}
	require.True(t, assessment.HasAttemptLimit())
	require.True(t, assessment.HasLatePenalty())
	require.Equal(t, 5.5, assessment.QuestionPoints())
}
