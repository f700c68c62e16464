package scoring

import (
	"math"
	"time"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// Adjustment is the outcome of applying the late policy to an instructor grade.
type Adjustment struct {
	Original float64
	Final    float64
	Applied  bool
}

// LatePenalty deducts percentPerDay of the original score for every day late. The result
// is clamped at zero.
func LatePenalty(original, percentPerDay float64, daysLate int) float64 {
	if daysLate <= 0 || percentPerDay <= 0 {
		return original
	}

	fraction := (percentPerDay / 100) * float64(daysLate)
	return Round(math.Max(0, original-original*fraction))
}

// AdjustForLateness applies the assessment's late policy to a grade entered for the
// submission. The grade itself is always the original, so grading the same submission
// twice never compounds the penalty.
func AdjustForLateness(grade float64, assessment models.Assessment, submission models.Submission) Adjustment {
	adjustment := Adjustment{Original: grade, Final: grade}
	if !submission.IsLate || !assessment.HasLatePenalty() || submission.DaysLate <= 0 {
		return adjustment
	}

	adjustment.Final = LatePenalty(grade, *assessment.LatePenaltyPercentPerDay, submission.DaysLate)
	adjustment.Applied = true
	return adjustment
}

// DaysLate counts the started days between the due date and the submission time. It is
// zero when there is no due date or the submission is on time.
func DaysLate(due *time.Time, submittedAt time.Time) int {
	if due == nil || !submittedAt.After(*due) {
		return 0
	}

	days := int(math.Ceil(submittedAt.Sub(*due).Hours() / 24))
	if days < 1 {
		days = 1
	}
	return days
}

// Percentage expresses score against total points, zero when total is not positive.
func Percentage(score, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return Round(score / total * 100)
}

// Passed applies the passing threshold to a percentage.
func Passed(percentage, passingScore float64) bool {
	return percentage >= passingScore
}

// Clamp bounds a score to [0, total].
func Clamp(score, total float64) float64 {
	if score < 0 {
		return 0
	}
	if total > 0 && score > total {
		return total
	}
	return score
}

// Round keeps two decimals.
func Round(value float64) float64 {
	return math.Round(value*100) / 100
}
