package config

import (
	"errors"
	"fmt"
)

var validStrategies = map[string]struct{}{
	"":          {}, // defaults to fail-fast
	"fail-fast": {},
	"continue":  {},
	"rollback":  {},
}

var validLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// Validate checks structural constraints and returns every violation
// joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if c.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if c.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q", c.Version))
	}

	if _, ok := validLogLevels[c.LogLevel]; !ok {
		errs = append(errs, fmt.Errorf("config: unknown log_level %q", c.LogLevel))
	}

	seen := make(map[string]struct{}, len(c.Pipelines))
	for _, p := range c.Pipelines {
		if p.ID == "" {
			errs = append(errs, errors.New("config: pipeline id is required"))
			continue
		}
		if _, dup := seen[p.ID]; dup {
			errs = append(errs, fmt.Errorf("config: duplicate pipeline id %q", p.ID))
		}
		seen[p.ID] = struct{}{}

		if _, ok := validStrategies[p.ErrorStrategy]; !ok {
			errs = append(errs, fmt.Errorf("config: pipeline %s: unknown error_strategy %q", p.ID, p.ErrorStrategy))
		}
		if len(p.Stages) == 0 {
			errs = append(errs, fmt.Errorf("config: pipeline %s: at least one stage is required", p.ID))
		}
		for _, s := range p.Stages {
			if s.Name == "" {
				errs = append(errs, fmt.Errorf("config: pipeline %s: stage name is required", p.ID))
			}
		}
	}

	return errors.Join(errs...)
}
