package ratelimit

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"ratelimiter/internal/models"
)

// PoliciesFromConfig builds a PolicySet from configuration. Tiers missing from
// cfg keep their built-in policy; unknown tier names are rejected.
func PoliciesFromConfig(cfg models.RateLimitConfig) (PolicySet, error) {
	ps := DefaultPolicies()
	for name, pc := range cfg.Policies {
		tier, ok := LookupTier(name)
		if !ok {
			return PolicySet{}, fmt.Errorf("%w: unknown tier %q", ErrInvalidPolicy, name)
		}
		alg, err := ParseAlgorithm(pc.Algorithm)
		if err != nil {
			return PolicySet{}, fmt.Errorf("tier %s: %w", name, err)
		}
		ps = ps.With(tier, Policy{
			Window:        pc.Window,
			MaxRequests:   pc.MaxRequests,
			Algorithm:     alg,
			BlockDuration: pc.BlockDuration,
		})
	}
	if err := ps.Validate(); err != nil {
		return PolicySet{}, err
	}
	return ps, nil
}

// ClassifierFromConfig builds a RuleClassifier from configured rules, or from
// DefaultRules when none are configured.
func ClassifierFromConfig(cfg models.RateLimitConfig) (Classifier, error) {
	fallback := TierDefault
	if cfg.DefaultTier != "" {
		t, ok := LookupTier(cfg.DefaultTier)
		if !ok {
			return nil, fmt.Errorf("unknown default tier %q", cfg.DefaultTier)
		}
		fallback = t
	}

	if len(cfg.Rules) == 0 {
		return RuleClassifier(DefaultRules(), fallback), nil
	}

	rules := make([]Rule, 0, len(cfg.Rules))
	for i, rc := range cfg.Rules {
		t, ok := LookupTier(rc.Tier)
		if !ok {
			return nil, fmt.Errorf("rule %d: unknown tier %q", i, rc.Tier)
		}
		rules = append(rules, Rule{PathPrefix: rc.PathPrefix, Methods: rc.Methods, Tier: t})
	}
	return RuleClassifier(rules, fallback), nil
}

// PathSkipper exempts requests whose path equals or is nested under one of
// paths.
func PathSkipper(paths []string) func(r *http.Request) bool {
	skip := slices.Clone(paths)
	return func(r *http.Request) bool {
		return slices.ContainsFunc(skip, func(p string) bool {
			return hasPathPrefix(r.URL.Path, p)
		})
	}
}

// RedisOptionsFromConfig maps configuration onto RedisOptions.
func RedisOptionsFromConfig(cfg models.RedisConfig) RedisOptions {
	return RedisOptions{
		Addr:                cfg.Addr,
		Username:            cfg.Username,
		Password:            cfg.Password,
		DB:                  cfg.DB,
		PoolSize:            cfg.PoolSize,
		DialTimeout:         cfg.DialTimeout,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		OperationTimeout:    cfg.OperationTimeout,
		FailureThreshold:    cfg.FailureThreshold,
		MaxRetries:          cfg.MaxRetries,
		RetryDelay:          cfg.RetryDelay,
		MaxRetryDelay:       cfg.MaxRetryDelay,
		HealthCheckInterval: cfg.HealthCheckInterval,
	}
}

func hasPathPrefix(path, prefix string) bool {
	base := strings.TrimSuffix(prefix, "/")
	return path == base || strings.HasPrefix(path, base+"/")
}
