// Package settings wraps the engine's hierarchical settings tree with
// read-modify-write helpers that only persist real changes.
package settings

import (
	"fmt"
	"slices"

	"github.com/capturectl/capturectl/internal/engine"
	"github.com/capturectl/capturectl/internal/errors"
	"github.com/capturectl/capturectl/internal/logger"
)

// Store reads and writes engine settings one category at a time.
type Store struct {
	api engine.SettingsAPI
	log logger.Logger
}

// New returns a Store backed by api.
func New(api engine.SettingsAPI, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Store{api: api, log: log}
}

// Get returns the subcategories of category.
func (s *Store) Get(category string) ([]engine.SubCategory, error) {
	data, err := s.api.Settings(category)
	if err != nil {
		return nil, errors.New(err).
			Component("settings").
			Category(errors.CategorySettings).
			SettingContext(category, "").
			Context("operation", "get_settings").
			Build()
	}
	return data, nil
}

// Set writes value to the first parameter named parameter in category. The
// category is only saved when the stored value differs; changed reports
// whether a save happened. A missing parameter is logged and left alone.
func (s *Store) Set(category, parameter string, value any) (changed bool, err error) {
	data, err := s.Get(category)
	if err != nil {
		return false, err
	}

	param := findParameter(data, parameter)
	if param == nil {
		s.log.Warn("settings parameter not found",
			logger.String("category", category),
			logger.String("parameter", parameter))
		return false, nil
	}

	if looselyEqual(param.CurrentValue, value) {
		return false, nil
	}

	old := param.CurrentValue
	param.CurrentValue = value

	if err := s.api.SaveSettings(category, data); err != nil {
		return false, errors.New(err).
			Component("settings").
			Category(errors.CategorySettings).
			SettingContext(category, parameter).
			Context("operation", "save_settings").
			Build()
	}

	s.log.Debug("settings updated",
		logger.String("category", category),
		logger.String("parameter", parameter),
		logger.Any("old", old),
		logger.Any("new", value))

	return true, nil
}

// AvailableValues returns the option values offered for a parameter, in the
// engine's order. Any missing level yields an empty slice and a warning.
func (s *Store) AvailableValues(category, subcategory, parameter string) []any {
	data, err := s.Get(category)
	if err != nil || data == nil {
		s.log.Warn("settings category not available",
			logger.String("category", category),
			logger.Error(err))
		return []any{}
	}

	idx := slices.IndexFunc(data, func(sc engine.SubCategory) bool { return sc.Name == subcategory })
	if idx < 0 {
		s.log.Warn("settings subcategory not found",
			logger.String("category", category),
			logger.String("subcategory", subcategory))
		return []any{}
	}

	pidx := slices.IndexFunc(data[idx].Parameters, func(p engine.Parameter) bool { return p.Name == parameter })
	if pidx < 0 {
		s.log.Warn("settings parameter not found",
			logger.String("category", category),
			logger.String("subcategory", subcategory),
			logger.String("parameter", parameter))
		return []any{}
	}

	options := data[idx].Parameters[pidx].Values
	values := make([]any, 0, len(options))
	for _, option := range options {
		if v, ok := optionValue(option); ok {
			values = append(values, v)
		}
	}
	return values
}

func findParameter(data []engine.SubCategory, name string) *engine.Parameter {
	for i := range data {
		for j := range data[i].Parameters {
			if data[i].Parameters[j].Name == name {
				return &data[i].Parameters[j]
			}
		}
	}
	return nil
}

// optionValue extracts the value of a single-key option object. Multi-key
// objects use the lexically first key.
func optionValue(option map[string]any) (any, bool) {
	if len(option) == 0 {
		return nil, false
	}
	keys := make([]string, 0, len(option))
	for k := range option {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return option[keys[0]], true
}

// looselyEqual compares scalars by their printed form so 60, 60.0 and "60"
// are treated as the same setting value.
func looselyEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}
