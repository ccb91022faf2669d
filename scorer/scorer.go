// Package scorer computes repository health indicators from a local
// git clone: commit cadence, contributor concentration and the size
// and comment density of the IaC scripts it tracks. The indicators
// feed the pre-trained model service.
package scorer

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const daysPerMonth = 30.0

// Summary carries the computed indicators. Frequencies are per
// 30-day window over the repository's commit span.
type Summary struct {
	Commits          int
	CommitFrequency  float64
	CoreContributors int
	PercentComments  float64
	PercentIac       float64
	SLOC             int
	FirstCommit      time.Time
	LastCommit       time.Time
}

// Scorer inspects one local clone.
type Scorer struct {
	repo   string
	logger *zap.Logger
}

// New builds a scorer over the clone at repo. logger may be nil.
func New(repo string, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{
		repo:   repo,
		logger: logger.With(zap.String("component", "scorer"), zap.String("repo", repo)),
	}
}

// Score walks the history and the tracked IaC files. A repository
// without commits is an error.
func (s *Scorer) Score(ctx context.Context) (*Summary, error) {
	if err := validateRepo(ctx, s.repo); err != nil {
		return nil, err
	}

	sum := &Summary{}
	if err := s.scanHistory(ctx, sum); err != nil {
		return nil, err
	}
	if err := s.scanFiles(ctx, sum); err != nil {
		return nil, err
	}

	s.logger.Debug("repository scored",
		zap.Int("commits", sum.Commits),
		zap.Float64("commit_frequency", sum.CommitFrequency),
		zap.Int("core_contributors", sum.CoreContributors),
		zap.Int("sloc", sum.SLOC))
	return sum, nil
}

// scanHistory derives commit cadence and contributor concentration
// from one git log pass.
func (s *Scorer) scanHistory(ctx context.Context, sum *Summary) error {
	out, err := gitOutput(ctx, s.repo, "log", "--all", "--pretty=format:%ae|%at")
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}

	byAuthor := make(map[string]int)
	var first, last time.Time
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		email, stamp, ok := strings.Cut(line, "|")
		if !ok {
			continue
		}
		unix, err := strconv.ParseInt(stamp, 10, 64)
		if err != nil {
			continue
		}
		at := time.Unix(unix, 0).UTC()
		if first.IsZero() || at.Before(first) {
			first = at
		}
		if at.After(last) {
			last = at
		}
		byAuthor[email]++
		sum.Commits++
	}
	if sum.Commits == 0 {
		return fmt.Errorf("repository has no commits")
	}
	sum.FirstCommit = first
	sum.LastCommit = last

	months := last.Sub(first).Hours() / 24 / daysPerMonth
	if months < 1 {
		months = 1
	}
	sum.CommitFrequency = float64(sum.Commits) / months

	// Core contributors: the smallest author set covering 80% of the
	// commits. Ties sort by email so repeated runs agree.
	type authorCount struct {
		email string
		count int
	}
	counts := make([]authorCount, 0, len(byAuthor))
	for email, n := range byAuthor {
		counts = append(counts, authorCount{email, n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].email < counts[j].email
	})
	threshold := 0.8 * float64(sum.Commits)
	covered := 0
	for _, ac := range counts {
		covered += ac.count
		sum.CoreContributors++
		if float64(covered) >= threshold {
			break
		}
	}
	return nil
}

// scanFiles measures the tracked tree: how much of it is IaC and how
// large and commented those scripts are.
func (s *Scorer) scanFiles(ctx context.Context, sum *Summary) error {
	out, err := gitOutput(ctx, s.repo, "ls-files")
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}

	total, iac := 0, 0
	code, comment := 0, 0
	for _, name := range strings.Split(out, "\n") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		total++
		if !isIacFile(name) {
			continue
		}
		iac++
		fileCode, fileComment, err := countSourceLines(filepath.Join(s.repo, name))
		if err != nil {
			s.logger.Warn("skipping unreadable file", zap.String("file", name), zap.Error(err))
			continue
		}
		code += fileCode
		comment += fileComment
	}

	if total > 0 {
		sum.PercentIac = float64(iac) / float64(total)
	}
	if code+comment > 0 {
		sum.PercentComments = float64(comment) / float64(code+comment)
	}
	sum.SLOC = code
	return nil
}

func isIacFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yml", ".yaml":
		return true
	}
	return false
}

func countSourceLines(path string) (code, comment int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "#"):
			comment++
		default:
			code++
		}
	}
	return code, comment, scanner.Err()
}
