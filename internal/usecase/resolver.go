package usecase

import (
	"encoding/json"
	"strconv"
	"time"
)

// Effective is the fully merged configuration for one job/call. It is
// derived on every use and never cached, since any tier may change between
// calls.
type Effective map[string]any

// ConfigResolver merges the configuration tiers with right-biased key
// overwrite: built-in defaults < global settings < job config < per-call
// overrides. Pure function over maps, no I/O.
type ConfigResolver struct {
	defaults map[string]any
}

func NewConfigResolver(defaults map[string]any) *ConfigResolver {
	return &ConfigResolver{defaults: defaults}
}

func (r *ConfigResolver) Resolve(global, job map[string]any, overrides ...map[string]any) Effective {
	eff := make(Effective, len(r.defaults))
	for k, v := range r.defaults {
		eff[k] = v
	}
	tiers := make([]map[string]any, 0, 2+len(overrides))
	tiers = append(tiers, global, job)
	tiers = append(tiers, overrides...)
	for _, tier := range tiers {
		for k, v := range tier {
			eff[k] = v
		}
	}
	return eff
}

// Typed getters. A missing key at every tier is not an error: the caller's
// fallback is the built-in default for that field. Values that passed
// through JSON arrive as float64 or json.Number, so the numeric getters
// accept those shapes too.

func (e Effective) String(key, fallback string) string {
	if v, ok := e[key].(string); ok {
		return v
	}
	return fallback
}

func (e Effective) Int(key string, fallback int) int {
	switch v := e[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func (e Effective) Bool(key string, fallback bool) bool {
	if v, ok := e[key].(bool); ok {
		return v
	}
	return fallback
}

// Seconds reads an integer number of seconds as a duration.
func (e Effective) Seconds(key string, fallback int) time.Duration {
	return time.Duration(e.Int(key, fallback)) * time.Second
}
