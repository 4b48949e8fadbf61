package rules

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/marketpulse/marketpulse-x/internal/storage"
	"github.com/marketpulse/marketpulse-x/pkg/types"
)

// ruleFile is the on-disk YAML shape of one rule definition.
type ruleFile struct {
	Name         string             `yaml:"name"`
	Type         string             `yaml:"type"`
	Enabled      *bool              `yaml:"enabled"`
	Level        string             `yaml:"level"`
	CooldownSecs int64              `yaml:"cooldown_secs"`
	ScopeTags    []string           `yaml:"scope_tags"`
	Params       map[string]float64 `yaml:"params"`
	Score        struct {
		Base    float64            `yaml:"base"`
		Weights map[string]float64 `yaml:"weights"`
	} `yaml:"score"`
}

// Loader reads rule definitions from a directory of YAML files and
// persists them, bumping versions when the source changed.
type Loader struct {
	dir    string
	store  storage.Store
	logger *zap.Logger
}

// LoaderConfig holds Loader configuration.
type LoaderConfig struct {
	Dir    string
	Store  storage.Store
	Logger *zap.Logger
}

// NewLoader creates a rule definition loader.
func NewLoader(cfg *LoaderConfig) *Loader {
	return &Loader{
		dir:    cfg.Dir,
		store:  cfg.Store,
		logger: cfg.Logger,
	}
}

// Parse validates the files in the loader's directory without persisting
// anything. Used by the validate subcommand.
func (l *Loader) Parse() ([]types.RuleDefinition, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read rules dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)

	seen := make(map[string]string)
	var defs []types.RuleDefinition
	for _, name := range files {
		raw, err := os.ReadFile(filepath.Join(l.dir, name))
		if err != nil {
			return nil, fmt.Errorf("read rule file %s: %w", name, err)
		}

		def, err := parseRule(raw)
		if err != nil {
			return nil, fmt.Errorf("rule file %s: %w", name, err)
		}

		if prev, dup := seen[def.Name]; dup {
			return nil, fmt.Errorf("rule file %s: duplicate rule name %q (also in %s)", name, def.Name, prev)
		}
		seen[def.Name] = name

		defs = append(defs, *def)
	}

	return defs, nil
}

// Load parses and persists every rule definition, returning the stored
// set with assigned ids and versions.
func (l *Loader) Load(ctx context.Context) ([]types.RuleDefinition, error) {
	defs, err := l.Parse()
	if err != nil {
		return nil, err
	}

	for i := range defs {
		def := &defs[i]
		bumped, err := l.store.UpsertRuleDef(ctx, def)
		if err != nil {
			return nil, fmt.Errorf("persist rule %s: %w", def.Name, err)
		}
		if bumped {
			l.logger.Info("rule-version-bumped",
				zap.String("rule", def.Name),
				zap.Int64("version", def.Version))
		}
	}

	RuleReloadsTotal.Inc()
	l.logger.Info("rules-loaded", zap.Int("count", len(defs)))
	return defs, nil
}

func parseRule(raw []byte) (*types.RuleDefinition, error) {
	var rf ruleFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	err := dec.Decode(&rf)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	if rf.Name == "" {
		return nil, fmt.Errorf("missing rule name")
	}
	if !types.ValidRuleType(rf.Type) {
		return nil, fmt.Errorf("unknown rule type %q", rf.Type)
	}

	level := rf.Level
	if level == "" {
		level = types.LevelP3
	}
	if level != types.LevelP1 && level != types.LevelP2 && level != types.LevelP3 {
		return nil, fmt.Errorf("invalid level %q", rf.Level)
	}

	enabled := true
	if rf.Enabled != nil {
		enabled = *rf.Enabled
	}

	base := rf.Score.Base
	if base == 0 {
		base = 50
	}

	return &types.RuleDefinition{
		Name:         rf.Name,
		Type:         rf.Type,
		Enabled:      enabled,
		Level:        level,
		CooldownSecs: rf.CooldownSecs,
		ScopeTags:    rf.ScopeTags,
		Params:       rf.Params,
		ScoreBase:    base,
		ScoreWeights: rf.Score.Weights,
		RawYAML:      string(raw),
	}, nil
}
