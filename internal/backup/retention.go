package backup

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nvandessel/sdrun/internal/store"
)

// RetentionPolicy decides which saved runs to keep. Runs are passed
// newest first, as ListRuns returns them.
type RetentionPolicy interface {
	Apply(runs []store.RunSummary) (keep []store.RunSummary)
}

// CountPolicy keeps the N most recent runs.
type CountPolicy struct {
	MaxCount int
}

// Apply keeps the first MaxCount runs.
func (p *CountPolicy) Apply(runs []store.RunSummary) []store.RunSummary {
	if len(runs) <= p.MaxCount {
		return runs
	}
	return runs[:p.MaxCount]
}

// AgePolicy keeps runs newer than MaxAge.
type AgePolicy struct {
	MaxAge time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// Apply keeps runs whose CreatedAt is within MaxAge of now.
func (p *AgePolicy) Apply(runs []store.RunSummary) []store.RunSummary {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	cutoff := now().Add(-p.MaxAge)
	var keep []store.RunSummary
	for _, r := range runs {
		if r.CreatedAt.After(cutoff) {
			keep = append(keep, r)
		}
	}
	return keep
}

// RowsPolicy keeps runs until their total row count would exceed
// MaxTotalRows. The newest run is always kept.
type RowsPolicy struct {
	MaxTotalRows int
}

// Apply keeps runs (newest first) until adding the next exceeds the limit.
func (p *RowsPolicy) Apply(runs []store.RunSummary) []store.RunSummary {
	var keep []store.RunSummary
	total := 0
	for _, r := range runs {
		if total+r.Rows > p.MaxTotalRows && len(keep) > 0 {
			break
		}
		keep = append(keep, r)
		total += r.Rows
	}
	return keep
}

// CompositePolicy keeps a run if ANY sub-policy wants it (union).
type CompositePolicy struct {
	Policies []RetentionPolicy
}

// Apply returns the union of runs kept by any sub-policy, in input order.
func (p *CompositePolicy) Apply(runs []store.RunSummary) []store.RunSummary {
	kept := make(map[string]bool)
	for _, policy := range p.Policies {
		for _, r := range policy.Apply(runs) {
			kept[r.ID] = true
		}
	}

	var result []store.RunSummary
	for _, r := range runs {
		if kept[r.ID] {
			result = append(result, r)
		}
	}
	return result
}

// ApplyRetention deletes the runs policy does not keep and returns their
// ids. With dryRun nothing is deleted.
func ApplyRetention(ctx context.Context, s RunStore, policy RetentionPolicy, dryRun bool) (deleted []string, err error) {
	runs, err := s.ListRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	keepSet := make(map[string]bool)
	for _, r := range policy.Apply(runs) {
		keepSet[r.ID] = true
	}

	for _, r := range runs {
		if keepSet[r.ID] {
			continue
		}
		if !dryRun {
			if err := s.DeleteRun(ctx, r.ID); err != nil {
				return deleted, fmt.Errorf("removing run %s: %w", r.ID, err)
			}
		}
		deleted = append(deleted, r.ID)
	}
	return deleted, nil
}

// ParseDuration parses duration strings like "30d", "2w", "720h".
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	// d (days) and w (weeks)
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}
	suffix := s[len(s)-1]
	num, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}
	switch suffix {
	case 'd':
		return time.Duration(num) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(num) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown duration suffix %q in %q", string(suffix), s)
	}
}
