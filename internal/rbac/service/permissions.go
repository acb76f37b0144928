package service

import (
	"slices"
	"sort"
	"strings"

	rbacdomain "github.com/smallbiznis/pricedesk/internal/rbac/domain"
)

func normalizeRoleName(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || strings.ContainsAny(name, ": ") {
		return "", rbacdomain.ErrInvalidName
	}
	return name, nil
}

// normalizePermissions validates features and methods and drops duplicates.
func normalizePermissions(perms rbacdomain.Permissions) (rbacdomain.Permissions, error) {
	out := rbacdomain.Permissions{}
	for feature, methods := range perms {
		feature = strings.TrimSpace(feature)
		if !knownFeature(feature) {
			return nil, rbacdomain.ErrInvalidFeature
		}
		for _, method := range methods {
			method = strings.ToUpper(strings.TrimSpace(method))
			if !slices.Contains(rbacdomain.Methods, method) {
				return nil, rbacdomain.ErrInvalidMethod
			}
			if !slices.Contains(out[feature], method) {
				out[feature] = append(out[feature], method)
			}
		}
	}
	return out, nil
}

func knownFeature(key string) bool {
	for _, f := range rbacdomain.Catalogue {
		if f.Key == key {
			return true
		}
	}
	return false
}

func allPermissions() rbacdomain.Permissions {
	perms := rbacdomain.Permissions{}
	for _, f := range rbacdomain.Catalogue {
		perms[f.Key] = slices.Clone(rbacdomain.Methods)
	}
	return perms
}

// policyRules expands perms into p rows with a stable feature order.
func policyRules(subject, domain string, perms rbacdomain.Permissions) []rbacdomain.Rule {
	features := make([]string, 0, len(perms))
	for feature := range perms {
		features = append(features, feature)
	}
	sort.Strings(features)

	rules := make([]rbacdomain.Rule, 0)
	for _, feature := range features {
		for _, method := range perms[feature] {
			rules = append(rules, rbacdomain.Rule{
				Ptype: rbacdomain.PtypePolicy,
				V0:    subject,
				V1:    domain,
				V2:    feature,
				V3:    method,
			})
		}
	}
	return rules
}

func groupingRule(user, role, domain string) rbacdomain.Rule {
	return rbacdomain.Rule{
		Ptype: rbacdomain.PtypeGrouping,
		V0:    user,
		V1:    role,
		V2:    domain,
	}
}

func permissionsOf(rules []rbacdomain.Rule, subject string) rbacdomain.Permissions {
	perms := rbacdomain.Permissions{}
	for _, rule := range rules {
		if rule.Ptype != rbacdomain.PtypePolicy || rule.V0 != subject {
			continue
		}
		if !slices.Contains(perms[rule.V2], rule.V3) {
			perms[rule.V2] = append(perms[rule.V2], rule.V3)
		}
	}
	return perms
}
