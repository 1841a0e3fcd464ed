package testdata

import (
	"context"
	"fmt"

	"github.com/ctagard/testops-mcp/internal/errors"
	"github.com/ctagard/testops-mcp/pkg/types"
)

// Environment validation thresholds
const (
	minTimeoutMs = 1000
	maxRetries   = 5
)

// CreateEnvironment stores a new environment built from the defaults with
// the keys present in config applied on top. An existing environment of
// the same name is replaced.
func (s *Store) CreateEnvironment(ctx context.Context, name string, config map[string]interface{}) (Environment, error) {
	env := DefaultEnvironment()
	if err := overlay(&env, config); err != nil {
		return Environment{}, errors.Wrap(errors.CodeInvalidArguments,
			fmt.Sprintf("Invalid environment config for %s", name),
			"Check the types of the config fields.", err)
	}

	_, err := s.Mutate(ctx, func(doc *Document) error {
		stored := env
		doc.Environments[name] = &stored
		return nil
	})
	if err != nil {
		return Environment{}, err
	}
	s.logger.Info("created environment", "environment", name)
	return env, nil
}

// UpdateEnvironment applies the keys present in config to an existing
// environment
func (s *Store) UpdateEnvironment(ctx context.Context, name string, config map[string]interface{}) (Environment, error) {
	var updated Environment
	_, err := s.Mutate(ctx, func(doc *Document) error {
		current, ok := doc.Environments[name]
		if !ok || current == nil {
			return errors.EnvironmentNotFound(name)
		}
		next := *current
		if err := overlay(&next, config); err != nil {
			return errors.Wrap(errors.CodeInvalidArguments,
				fmt.Sprintf("Invalid environment config for %s", name),
				"Check the types of the config fields.", err)
		}
		doc.Environments[name] = &next
		updated = next
		return nil
	})
	if err != nil {
		return Environment{}, err
	}
	s.logger.Info("updated environment", "environment", name, "fields", len(config))
	return updated, nil
}

// ValidateEnvironment checks a stored environment. The boolean is false
// when no environment of that name exists.
func (s *Store) ValidateEnvironment(ctx context.Context, name string) (types.ValidationResult, bool, error) {
	doc, err := s.Load(ctx)
	if err != nil {
		return types.ValidationResult{}, false, err
	}
	env, ok := doc.Environments[name]
	if !ok || env == nil {
		return types.ValidationResult{}, false, nil
	}
	return ValidateEnvironment(*env), true, nil
}

// ValidateEnvironment reports missing required settings as errors and
// risky ones as warnings
func ValidateEnvironment(env Environment) types.ValidationResult {
	result := types.ValidationResult{Valid: true, Errors: []string{}, Warnings: []string{}}
	if env.BaseURL == "" {
		result.Errors = append(result.Errors, "baseUrl is required")
		result.Valid = false
	}
	if env.Timeout != 0 && env.Timeout < minTimeoutMs {
		result.Warnings = append(result.Warnings, "timeout is very low, consider increasing")
	}
	if env.Retries > maxRetries {
		result.Warnings = append(result.Warnings, "high retry count may slow down test execution")
	}
	return result
}

// SwitchEnvironment records name as the document's active environment
func (s *Store) SwitchEnvironment(ctx context.Context, name string) error {
	_, err := s.Mutate(ctx, func(doc *Document) error {
		if _, ok := doc.Environments[name]; !ok {
			return errors.EnvironmentNotFound(name)
		}
		doc.ActiveEnvironment = name
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("switched environment", "environment", name)
	return nil
}
