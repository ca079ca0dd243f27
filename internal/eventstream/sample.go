package eventstream

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/pathlens/pathlens/internal/errors"
	"github.com/pathlens/pathlens/internal/frame"
)

// UserSample selects a random subset of user paths before normalization.
// Exactly one of Count and Fraction must be set: Count picks that many
// distinct users, Fraction picks that share of all distinct users. Selection
// is deterministic for a given seed.
type UserSample struct {
	Count    int
	Fraction float64
	Seed     int64
}

func (s UserSample) validate() error {
	if s.Count < 0 {
		return errors.NewValidationError(errors.CodeInvalidSampleSize, "user sample size cannot be negative")
	}
	if s.Fraction < 0 {
		return errors.NewValidationError(errors.CodeInvalidSampleSize, "user sample share cannot be negative")
	}
	if s.Fraction > 1 {
		return errors.NewValidationError(errors.CodeInvalidSampleSize, "user sample share cannot exceed 1")
	}
	if s.Count > 0 && s.Fraction > 0 {
		return errors.NewValidationError(errors.CodeInvalidSampleSize, "user sample size and share are mutually exclusive")
	}
	if s.Count == 0 && s.Fraction == 0 {
		return errors.NewValidationError(errors.CodeInvalidSampleSize, "user sample requires a size or a share")
	}
	return nil
}

// sampleUserPaths restricts raw rows to the trajectories of a sampled subset
// of distinct users.
func sampleUserPaths(raw *frame.Frame, userCol string, sample UserSample) (*frame.Frame, error) {
	if err := sample.validate(); err != nil {
		return nil, err
	}
	users, err := rawColumn(raw, userCol)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var distinct []string
	for _, v := range users {
		if frame.IsNull(v) {
			continue
		}
		key := userKey(v)
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			distinct = append(distinct, key)
		}
	}

	size := sample.Count
	if sample.Fraction > 0 {
		size = int(sample.Fraction * float64(len(distinct)))
	}
	if size > len(distinct) {
		size = len(distinct)
	}

	// Deterministic for a seed: shuffle a sorted copy of the user set and
	// take a prefix.
	sort.Strings(distinct)
	rng := rand.New(rand.NewSource(sample.Seed))
	rng.Shuffle(len(distinct), func(i, j int) {
		distinct[i], distinct[j] = distinct[j], distinct[i]
	})

	chosen := make(map[string]struct{}, size)
	for _, u := range distinct[:size] {
		chosen[u] = struct{}{}
	}

	return raw.Filter(func(i int) bool {
		if frame.IsNull(users[i]) {
			return false
		}
		_, ok := chosen[userKey(users[i])]
		return ok
	}), nil
}

// userKey folds a user id cell into a comparable key regardless of its
// physical type.
func userKey(v interface{}) string {
	return fmt.Sprintf("%v", v)
}
