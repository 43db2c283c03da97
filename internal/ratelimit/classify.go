package ratelimit

import (
	"net/http"
	"slices"
	"strings"
)

// Rule assigns Tier to requests whose path starts with PathPrefix and, when
// Methods is non-empty, whose method is listed.
type Rule struct {
	PathPrefix string
	Methods    []string
	Tier       Tier
}

func (r Rule) matches(req *http.Request) bool {
	if !strings.HasPrefix(req.URL.Path, r.PathPrefix) {
		return false
	}
	if len(r.Methods) == 0 {
		return true
	}
	return slices.ContainsFunc(r.Methods, func(m string) bool {
		return strings.EqualFold(m, req.Method)
	})
}

// RuleClassifier returns a Classifier choosing the matching rule with the
// longest path prefix. Requests matching no rule get fallback.
func RuleClassifier(rules []Rule, fallback Tier) Classifier {
	sorted := slices.Clone(rules)
	slices.SortStableFunc(sorted, func(a, b Rule) int {
		return len(b.PathPrefix) - len(a.PathPrefix)
	})

	return func(r *http.Request) Tier {
		for _, rule := range sorted {
			if rule.matches(r) {
				return rule.Tier
			}
		}
		return fallback
	}
}

// DefaultRules classifies the exam application's endpoints.
func DefaultRules() []Rule {
	return []Rule{
		{PathPrefix: "/api/auth/", Tier: TierAuth},
		{PathPrefix: "/api/v1/auth/", Tier: TierAuth},
		{PathPrefix: "/api/admin/", Tier: TierAdmin},
		{PathPrefix: "/api/v1/admin/", Tier: TierAdmin},
		{PathPrefix: "/api/users/", Tier: TierUser},
		{PathPrefix: "/api/", Tier: TierAPI},
	}
}
