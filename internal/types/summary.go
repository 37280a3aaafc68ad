package types

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type RunKind string

const (
	RunFetch      RunKind = "fetch"
	RunClassify   RunKind = "classify"
	RunReclassify RunKind = "reclassify"
	RunDigest     RunKind = "summary"
)

// RunSummary is the structured outcome of one pipeline run.
type RunSummary struct {
	RunID            string
	Kind             RunKind
	StartedAt        time.Time
	Duration         time.Duration
	Fetched          int
	Staged           int
	SkippedDuplicate int
	Classified       int
	Excluded         int
	Uncategorized    int
	Errored          int
	Failed           int
	Prefiltered      int
	Normalized       int
	ProviderErrors   map[string]string
	Partial          bool

	mu sync.Mutex
}

func NewRunSummary(runID string, kind RunKind, startedAt time.Time) *RunSummary {
	return &RunSummary{
		RunID:          runID,
		Kind:           kind,
		StartedAt:      startedAt,
		ProviderErrors: make(map[string]string),
	}
}

func (s *RunSummary) AddProviderError(source string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ProviderErrors[source] = err.Error()
	s.Partial = true
}

func (s *RunSummary) Add(other *RunSummary) {
	if other == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fetched += other.Fetched
	s.Staged += other.Staged
	s.SkippedDuplicate += other.SkippedDuplicate
	s.Classified += other.Classified
	s.Excluded += other.Excluded
	s.Uncategorized += other.Uncategorized
	s.Errored += other.Errored
	s.Failed += other.Failed
	s.Prefiltered += other.Prefiltered
	s.Normalized += other.Normalized
	for k, v := range other.ProviderErrors {
		s.ProviderErrors[k] = v
	}
	s.Partial = s.Partial || other.Partial
}

// LogAttrs returns the counters as slog key/value pairs.
func (s *RunSummary) LogAttrs() []any {
	return []any{
		"run_id", s.RunID,
		"kind", string(s.Kind),
		"duration", s.Duration,
		"fetched", s.Fetched,
		"staged", s.Staged,
		"skipped_duplicate", s.SkippedDuplicate,
		"classified", s.Classified,
		"excluded", s.Excluded,
		"uncategorized", s.Uncategorized,
		"errored", s.Errored,
		"failed", s.Failed,
		"partial", s.Partial,
	}
}

func (s *RunSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s run %s (%s)\n", s.Kind, s.RunID, s.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "  fetched:           %d\n", s.Fetched)
	fmt.Fprintf(&b, "  staged:            %d\n", s.Staged)
	fmt.Fprintf(&b, "  skipped duplicate: %d\n", s.SkippedDuplicate)
	fmt.Fprintf(&b, "  classified:        %d\n", s.Classified)
	fmt.Fprintf(&b, "  excluded:          %d\n", s.Excluded)
	fmt.Fprintf(&b, "  uncategorized:     %d\n", s.Uncategorized)
	fmt.Fprintf(&b, "  errored:           %d\n", s.Errored)
	fmt.Fprintf(&b, "  failed:            %d\n", s.Failed)
	if s.Prefiltered > 0 || s.Normalized > 0 {
		fmt.Fprintf(&b, "  prefiltered:       %d\n", s.Prefiltered)
		fmt.Fprintf(&b, "  normalized:        %d\n", s.Normalized)
	}
	if len(s.ProviderErrors) > 0 {
		names := make([]string, 0, len(s.ProviderErrors))
		for name := range s.ProviderErrors {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("  provider errors (partial run):\n")
		for _, name := range names {
			fmt.Fprintf(&b, "    %s: %s\n", name, s.ProviderErrors[name])
		}
	}
	return b.String()
}
