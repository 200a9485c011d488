package ranking

import "strings"

// Resolve picks a single rank out of the profile columns that may carry one.
// Precedence is verified_rank, then current_rank, then the legacy rank column.
// Blank values are skipped; the first non-blank value must parse.
// It returns nil when the player is unranked.
func Resolve(verified, current, legacy *string) (*Rank, error) {
	for _, candidate := range []*string{verified, current, legacy} {
		if candidate == nil || strings.TrimSpace(*candidate) == "" {
			continue
		}
		r, err := Parse(*candidate)
		if err != nil {
			return nil, err
		}
		return &r, nil
	}
	return nil, nil
}

// OrDefault returns *r, or Default when r is nil.
func OrDefault(r *Rank) Rank {
	if r == nil {
		return Default
	}
	return *r
}
