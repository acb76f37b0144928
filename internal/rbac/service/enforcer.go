package service

import (
	_ "embed"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	rbacdomain "github.com/smallbiznis/pricedesk/internal/rbac/domain"
)

//go:embed model.conf
var modelText string

// newEnforcer builds an in-memory enforcer holding only the given rules.
// It has no adapter, so nothing it does is persisted.
func newEnforcer(rules []rbacdomain.Rule) (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}
	for _, rule := range rules {
		switch rule.Ptype {
		case rbacdomain.PtypePolicy:
			if _, err := e.AddPolicy(rule.V0, rule.V1, rule.V2, rule.V3); err != nil {
				return nil, err
			}
		case rbacdomain.PtypeGrouping:
			if _, err := e.AddGroupingPolicy(rule.V0, rule.V1, rule.V2); err != nil {
				return nil, err
			}
		}
	}
	return e, nil
}
