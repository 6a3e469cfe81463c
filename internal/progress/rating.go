package progress

import (
	gofsrs "github.com/open-spaced-repetition/go-fsrs"
)

// Rating is the learner's self-assessment of a review on the go-fsrs scale
// (Again=1, Hard=2, Good=3, Easy=4).
type Rating = gofsrs.Rating

const (
	Again = gofsrs.Again
	Hard  = gofsrs.Hard
	Good  = gofsrs.Good
	Easy  = gofsrs.Easy
)

// ClampRating maps any integer onto the 1-4 scale. Values below 1 become
// Again and values above 4 become Easy. Every entry point that accepts a raw
// rating goes through here so out-of-range input is handled the same way
// everywhere.
func ClampRating(n int) Rating {
	switch {
	case n < int(Again):
		return Again
	case n > int(Easy):
		return Easy
	default:
		return Rating(n)
	}
}

// IsSuccess reports whether the rating counts as a correct recall (Good or Easy).
func IsSuccess(r Rating) bool {
	return r >= Good
}

// RatingName returns a human readable label for a rating.
func RatingName(r Rating) string {
	switch ClampRating(int(r)) {
	case Again:
		return "Forgot"
	case Hard:
		return "Hard"
	case Good:
		return "Good"
	default:
		return "Easy"
	}
}
