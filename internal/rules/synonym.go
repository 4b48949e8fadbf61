package rules

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/marketpulse/marketpulse-x/internal/storage"
	"github.com/marketpulse/marketpulse-x/pkg/types"
)

// synonymFile is the on-disk YAML shape of the synonym configuration.
// Explicit groups name their members; keyword groups collect every
// market whose title contains one of the phrases.
type synonymFile struct {
	Explicit map[string][]string `yaml:"explicit"`
	Keyword  []struct {
		Title   string   `yaml:"title"`
		Phrases []string `yaml:"phrases"`
	} `yaml:"keyword"`
}

// SynonymMatcher materializes synonym groups from the declarative
// configuration against the current market set.
type SynonymMatcher struct {
	path   string
	store  storage.Store
	logger *zap.Logger
}

// SynonymConfig holds SynonymMatcher configuration.
type SynonymConfig struct {
	Path   string
	Store  storage.Store
	Logger *zap.Logger
}

// NewSynonymMatcher creates a matcher for the given configuration file.
func NewSynonymMatcher(cfg *SynonymConfig) *SynonymMatcher {
	return &SynonymMatcher{
		path:   cfg.Path,
		store:  cfg.Store,
		logger: cfg.Logger,
	}
}

// Materialize rebuilds and persists the synonym groups. Groups with
// fewer than two members are dropped: a single market cannot be
// cross-checked against anything.
func (m *SynonymMatcher) Materialize(ctx context.Context) ([]types.SynonymGroup, error) {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			m.logger.Info("synonyms-config-absent", zap.String("path", m.path))
			return nil, nil
		}
		return nil, fmt.Errorf("read synonyms config: %w", err)
	}

	var sf synonymFile
	err = yaml.Unmarshal(raw, &sf)
	if err != nil {
		return nil, fmt.Errorf("parse synonyms config: %w", err)
	}

	markets, err := m.store.ListMarkets(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}

	var groups []types.SynonymGroup

	var titles []string
	for title := range sf.Explicit {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	for _, title := range titles {
		members := sf.Explicit[title]
		if len(members) < 2 {
			continue
		}
		groups = append(groups, types.SynonymGroup{
			Method:  "explicit",
			Title:   title,
			Members: append([]string(nil), members...),
		})
	}

	for _, kw := range sf.Keyword {
		var members []string
		for i := range markets {
			if titleMatches(markets[i].Title, kw.Phrases) {
				members = append(members, markets[i].MarketID)
			}
		}
		if len(members) < 2 {
			continue
		}
		groups = append(groups, types.SynonymGroup{
			Method:  "keyword",
			Title:   kw.Title,
			Members: members,
		})
	}

	err = m.store.ReplaceSynonymGroups(ctx, groups)
	if err != nil {
		return nil, fmt.Errorf("persist synonym groups: %w", err)
	}

	m.logger.Info("synonym-groups-materialized", zap.Int("count", len(groups)))
	return groups, nil
}

func titleMatches(title string, phrases []string) bool {
	lower := strings.ToLower(title)
	for _, phrase := range phrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}
