package app

// Outcome is the derived reward for a completed run.
type Outcome struct {
	FinalCP   int `json:"cpEarned"`
	DBPMinted int `json:"dbpMinted"`
	XPEarned  int `json:"xpEarned"`
}

const (
	baseXP        = 10
	cpPerXP       = 100
	secondsPerXP  = 30
	bonusThrowXP  = 25
	xpPerBoost    = 5
	cpPerDBP      = 10
	bonusMultiple = 2
)

// Score applies the bonus-throw multiplier, mints one DBP per 10 final CP and
// computes the XP award.
func Score(cpEarned, durationSeconds int, bonusThrowUsed bool, boostsUsed []int) Outcome {
	finalCP := cpEarned
	if bonusThrowUsed {
		finalCP *= bonusMultiple
	}
	return Outcome{
		FinalCP:   finalCP,
		DBPMinted: finalCP / cpPerDBP,
		XPEarned:  CalculateXP(finalCP, durationSeconds, bonusThrowUsed, len(boostsUsed)),
	}
}

func CalculateXP(finalCP, durationSeconds int, bonusThrowUsed bool, boosts int) int {
	xp := baseXP + finalCP/cpPerXP + durationSeconds/secondsPerXP + boosts*xpPerBoost
	if bonusThrowUsed {
		xp += bonusThrowXP
	}
	return xp
}
