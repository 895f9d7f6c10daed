package trust

import "time"

// BaselineScore is the starting trust score assigned on first registration.
const BaselineScore = 50

// Score computes the trust score as a pure function of a record's
// counters and age. It is always in [0,100] for any input.
func Score(connectionCount, verificationFailures int64, ageDays int64) int {
	score := BaselineScore
	score += minInt(20, int(connectionCount/10))
	score -= minInt(30, int(verificationFailures)*5)
	score += minInt(10, int(ageDays/30))

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// ScoreForRecord derives the TrustScore for a Record as of now.
func ScoreForRecord(r *Record, now time.Time) int {
	ageDays := int64(now.Sub(r.VerifiedAt) / (24 * time.Hour))
	if ageDays < 0 {
		ageDays = 0
	}
	return Score(r.ConnectionCount, r.VerificationFailures, ageDays)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
