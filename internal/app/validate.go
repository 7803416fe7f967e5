package app

import (
	"regexp"

	apperrors "github.com/JohnnyButtersfingers/my-hamballer-game/internal/errors"
)

var (
	addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	seedPattern    = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
)

const (
	MaxCPEarned = 10000
	MinDuration = 30
	MaxDuration = 300
	MinBoostID  = 1
	MaxBoostID  = 5

	// zeroSeed stands in when a completion arrives without a started run or seed.
	zeroSeed = "0x0000000000000000000000000000000000000000000000000000000000000000"
)

func validateAddress(address string) error {
	if !addressPattern.MatchString(address) {
		return apperrors.ValidationError("Invalid request data").
			WithContext("details", `"playerAddress" must be a 0x-prefixed 40 hex character address`)
	}
	return nil
}

func (r StartRunRequest) Validate() error {
	if err := validateAddress(r.PlayerID); err != nil {
		return err
	}
	if !seedPattern.MatchString(r.Seed) {
		return apperrors.ValidationError("Invalid request data").
			WithContext("details", `"seed" must be a 0x-prefixed 64 hex character value`)
	}
	return nil
}

func (r CompleteRunRequest) Validate() error {
	if err := validateAddress(r.PlayerID); err != nil {
		return err
	}
	invalid := func(details string) error {
		return apperrors.ValidationError("Invalid request data").WithContext("details", details)
	}
	if r.CPEarned < 0 || r.CPEarned > MaxCPEarned {
		return invalid(`"cpEarned" must be between 0 and 10000`)
	}
	if r.Duration < MinDuration || r.Duration > MaxDuration {
		return invalid(`"duration" must be between 30 and 300`)
	}
	for _, boost := range r.BoostsUsed {
		if boost < MinBoostID || boost > MaxBoostID {
			return invalid(`"boostsUsed" items must be between 1 and 5`)
		}
	}
	if r.Seed != "" && !seedPattern.MatchString(r.Seed) {
		return invalid(`"seed" must be a 0x-prefixed 64 hex character value`)
	}
	return nil
}

func (r FailRunRequest) Validate() error {
	if r.PlayerID == "" || r.Duration <= 0 {
		return apperrors.ValidationError("Player address and duration are required")
	}
	return validateAddress(r.PlayerID)
}
