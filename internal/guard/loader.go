package guard

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"mqtt-rpc/internal/logger"
)

// RulesLoader reads guard rule files
type RulesLoader struct {
	logger *logger.Logger
}

// NewRulesLoader creates a new rules loader
func NewRulesLoader(log *logger.Logger) *RulesLoader {
	if log == nil {
		log = logger.NewNop()
	}
	return &RulesLoader{logger: log}
}

// LoadFromDirectory loads every .yaml, .yml and .json rule file below path
func (l *RulesLoader) LoadFromDirectory(path string) ([]Rule, error) {
	var rules []Rule

	err := filepath.Walk(path, func(file string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		switch filepath.Ext(file) {
		case ".yaml", ".yml", ".json":
		default:
			return nil
		}

		loaded, err := l.LoadFile(file)
		if err != nil {
			return err
		}
		rules = append(rules, loaded...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load guard rules: %w", err)
	}

	l.logger.Info("guard rules loaded", "path", path, "totalRules", len(rules))
	return rules, nil
}

// LoadFile loads one rule set file
func (l *RulesLoader) LoadFile(file string) ([]Rule, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		l.logger.Error("failed to read rule file", "path", file, "error", err)
		return nil, err
	}

	var set RuleSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		l.logger.Error("failed to parse rule file", "path", file, "error", err)
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	for i := range set.Rules {
		if err := validateRule(&set.Rules[i]); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
	}

	l.logger.Debug("loaded rule file", "path", file, "set", set.Name, "count", len(set.Rules))
	return set.Rules, nil
}
