package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	pricebookdomain "github.com/smallbiznis/pricedesk/internal/pricebook/domain"
	"github.com/smallbiznis/pricedesk/internal/pricebook/rules"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) CreateRule(ctx context.Context, priceBookID string, req pricebookdomain.RuleRequest) (*pricebookdomain.RuleResponse, error) {
	tenantID, bookID, err := s.parse(ctx, priceBookID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, pricebookdomain.ErrInvalidName
	}
	if !validAction(req.Action) {
		return nil, pricebookdomain.ErrInvalidAction
	}
	value := decimal.Zero
	if req.Value != nil {
		value = *req.Value
	}
	if value.IsNegative() || (req.Action != pricebookdomain.ActionRequireApproval && req.Value == nil) {
		return nil, pricebookdomain.ErrInvalidValue
	}
	condition := ""
	if req.Condition != nil {
		condition = strings.TrimSpace(*req.Condition)
	}
	if err := s.engine.Compile(condition); err != nil {
		return nil, pricebookdomain.ErrInvalidCondition
	}
	var productID *snowflake.ID
	if req.ProductID != nil && strings.TrimSpace(*req.ProductID) != "" {
		id, err := parseID(*req.ProductID)
		if err != nil {
			return nil, pricebookdomain.ErrInvalidProduct
		}
		productID = &id
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	rule := &pricebookdomain.PriceBookRule{
		Base:        model.NewBase(ctx, s.genID.Generate(), s.clock.Now()),
		PriceBookID: bookID,
		ProductID:   productID,
		Name:        name,
		Condition:   condition,
		Action:      req.Action,
		Value:       value,
		Active:      active,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadBook(ctx, s.books.WithTrx(tx), tenantID, bookID); err != nil {
			if errors.Is(err, pricebookdomain.ErrNotFound) {
				return pricebookdomain.ErrInvalidPriceBook
			}
			return err
		}
		if productID != nil {
			product, err := s.products.WithTrx(tx).FindByID(ctx, tenantID, *productID)
			if err != nil {
				return err
			}
			if product == nil {
				return pricebookdomain.ErrInvalidProduct
			}
		}
		if err := s.rules.WithTrx(tx).Create(ctx, rule); err != nil {
			return err
		}
		return s.audit(ctx, tx, "price_book_rule.create", "price_book_rule", rule.ID, map[string]any{
			"price_book_id": bookID.String(),
			"action":        string(rule.Action),
		})
	})
	if err != nil {
		return nil, err
	}
	return toRuleResponse(rule), nil
}

func (s *Service) ListRules(ctx context.Context, priceBookID string) ([]pricebookdomain.RuleResponse, error) {
	tenantID, bookID, err := s.parse(ctx, priceBookID)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadBook(ctx, s.books, tenantID, bookID); err != nil {
		return nil, err
	}
	items, err := s.rules.Find(ctx, tenantID, &pricebookdomain.PriceBookRule{PriceBookID: bookID}, oldestFirst())
	if err != nil {
		return nil, err
	}
	resp := make([]pricebookdomain.RuleResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, *toRuleResponse(item))
	}
	return resp, nil
}

func (s *Service) UpdateRule(ctx context.Context, id string, req pricebookdomain.RuleRequest) (*pricebookdomain.RuleResponse, error) {
	tenantID, ruleID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	values := map[string]any{}
	if req.Name != "" {
		name := strings.TrimSpace(req.Name)
		if name == "" {
			return nil, pricebookdomain.ErrInvalidName
		}
		values["name"] = name
	}
	if req.Condition != nil {
		condition := strings.TrimSpace(*req.Condition)
		if err := s.engine.Compile(condition); err != nil {
			return nil, pricebookdomain.ErrInvalidCondition
		}
		values["condition"] = condition
	}
	if req.Action != "" {
		if !validAction(req.Action) {
			return nil, pricebookdomain.ErrInvalidAction
		}
		values["action"] = req.Action
	}
	if req.Value != nil {
		if req.Value.IsNegative() {
			return nil, pricebookdomain.ErrInvalidValue
		}
		values["value"] = *req.Value
	}
	if req.Active != nil {
		values["active"] = *req.Active
	}

	var rule *pricebookdomain.PriceBookRule
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.rules.WithTrx(tx)
		if _, err := loadRow(ctx, repo, tenantID, ruleID); err != nil {
			return err
		}
		if err := repo.Update(ctx, tenantID, ruleID, model.Updates(ctx, s.clock.Now(), values)); err != nil {
			return err
		}
		rule, err = loadRow(ctx, repo, tenantID, ruleID)
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, "price_book_rule.update", "price_book_rule", ruleID, nil)
	})
	if err != nil {
		return nil, err
	}
	return toRuleResponse(rule), nil
}

func (s *Service) DeleteRule(ctx context.Context, id string) error {
	tenantID, ruleID, err := s.parse(ctx, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.rules.WithTrx(tx)
		if _, err := loadRow(ctx, repo, tenantID, ruleID); err != nil {
			return err
		}
		if err := repo.SoftDelete(ctx, tenantID, ruleID, tenantcontext.ActorRef(ctx)); err != nil {
			return err
		}
		return s.audit(ctx, tx, "price_book_rule.delete", "price_book_rule", ruleID, nil)
	})
}

func (s *Service) GetDiscountPolicy(ctx context.Context, priceBookID string) (*pricebookdomain.DiscountPolicyResponse, error) {
	tenantID, bookID, err := s.parse(ctx, priceBookID)
	if err != nil {
		return nil, err
	}
	policy, err := s.policies.FindOne(ctx, tenantID, &pricebookdomain.DiscountPolicy{PriceBookID: bookID})
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, pricebookdomain.ErrNotFound
	}
	return toPolicyResponse(policy), nil
}

// SetDiscountPolicy creates or replaces the price book's policy.
func (s *Service) SetDiscountPolicy(ctx context.Context, priceBookID string, req pricebookdomain.DiscountPolicyRequest) (*pricebookdomain.DiscountPolicyResponse, error) {
	tenantID, bookID, err := s.parse(ctx, priceBookID)
	if err != nil {
		return nil, err
	}
	if !validPercent(req.MaxDiscountPercent) || !validPercent(req.ApprovalThresholdPercent) ||
		req.ApprovalThresholdPercent.GreaterThan(req.MaxDiscountPercent) {
		return nil, pricebookdomain.ErrInvalidPolicy
	}
	roles := normalizeRoles(req.ApproverRoles)

	var policy *pricebookdomain.DiscountPolicy
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadBook(ctx, s.books.WithTrx(tx), tenantID, bookID); err != nil {
			return err
		}
		repo := s.policies.WithTrx(tx)
		existing, err := repo.FindOne(ctx, tenantID, &pricebookdomain.DiscountPolicy{PriceBookID: bookID})
		if err != nil {
			return err
		}
		if existing == nil {
			policy = &pricebookdomain.DiscountPolicy{
				Base:                     model.NewBase(ctx, s.genID.Generate(), s.clock.Now()),
				PriceBookID:              bookID,
				MaxDiscountPercent:       req.MaxDiscountPercent,
				ApprovalThresholdPercent: req.ApprovalThresholdPercent,
				ApproverRoles:            roles,
			}
			if err := repo.Create(ctx, policy); err != nil {
				return err
			}
		} else {
			err := repo.Update(ctx, tenantID, existing.ID, model.Updates(ctx, s.clock.Now(), map[string]any{
				"max_discount_percent":       req.MaxDiscountPercent,
				"approval_threshold_percent": req.ApprovalThresholdPercent,
				"approver_roles":             roles,
			}))
			if err != nil {
				return err
			}
			if policy, err = loadRow(ctx, repo, tenantID, existing.ID); err != nil {
				return err
			}
		}
		return s.audit(ctx, tx, "discount_policy.set", "price_book", bookID, map[string]any{
			"max_discount_percent":       req.MaxDiscountPercent.String(),
			"approval_threshold_percent": req.ApprovalThresholdPercent.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	return toPolicyResponse(policy), nil
}

// Check evaluates every active rule against every line it applies to, then
// the discount policy against each line's discount. A rule whose condition
// fails to evaluate is skipped and logged.
func (s *Service) Check(ctx context.Context, req pricebookdomain.CheckRequest) (*pricebookdomain.Verdict, error) {
	tenantID, bookID, err := s.parse(ctx, req.PriceBookID)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadBook(ctx, s.books, tenantID, bookID); err != nil {
		if errors.Is(err, pricebookdomain.ErrNotFound) {
			return nil, pricebookdomain.ErrInvalidPriceBook
		}
		return nil, err
	}
	activeRules, err := s.rules.Find(ctx, tenantID, &pricebookdomain.PriceBookRule{PriceBookID: bookID, Active: true}, oldestFirst())
	if err != nil {
		return nil, err
	}
	policy, err := s.policies.FindOne(ctx, tenantID, &pricebookdomain.DiscountPolicy{PriceBookID: bookID})
	if err != nil {
		return nil, err
	}

	verdict := &pricebookdomain.Verdict{}
	quoteTotal := req.QuoteTotal.InexactFloat64()
	for _, line := range req.Lines {
		facts := toFacts(line, quoteTotal)
		quantity := decimal.NewFromFloat(facts.Quantity)
		for _, rule := range activeRules {
			if rule.ProductID != nil && rule.ProductID.String() != line.ProductID {
				continue
			}
			matched, err := s.engine.Match(rule.Condition, facts)
			if err != nil {
				s.log.Warn("rule condition failed", zap.String("rule_id", rule.ID.String()), zap.Error(err))
				continue
			}
			if !matched {
				continue
			}
			switch rule.Action {
			case pricebookdomain.ActionMinQuantity:
				if quantity.LessThan(rule.Value) {
					verdict.Violations = append(verdict.Violations, violation(rule, line.ProductID, quantity))
				}
			case pricebookdomain.ActionMaxQuantity:
				if quantity.GreaterThan(rule.Value) {
					verdict.Violations = append(verdict.Violations, violation(rule, line.ProductID, quantity))
				}
			case pricebookdomain.ActionMaxDiscount:
				if line.DiscountPercent.GreaterThan(rule.Value) {
					verdict.Violations = append(verdict.Violations, violation(rule, line.ProductID, line.DiscountPercent))
				}
			case pricebookdomain.ActionRequireApproval:
				verdict.RequiresApproval = true
			}
		}

		if policy == nil {
			continue
		}
		switch {
		case line.DiscountPercent.GreaterThan(policy.MaxDiscountPercent):
			verdict.Violations = append(verdict.Violations, pricebookdomain.Violation{
				Rule:      "discount_policy",
				ProductID: line.ProductID,
				Action:    pricebookdomain.ActionMaxDiscount,
				Limit:     policy.MaxDiscountPercent,
				Actual:    line.DiscountPercent,
			})
		case line.DiscountPercent.GreaterThan(policy.ApprovalThresholdPercent):
			verdict.RequiresApproval = true
		}
	}
	if verdict.RequiresApproval && policy != nil {
		verdict.ApproverRoles = append([]string(nil), policy.ApproverRoles...)
	}
	return verdict, nil
}

func toFacts(line pricebookdomain.CheckLine, quoteTotal float64) rules.Facts {
	quantities := make(map[string]float64, len(line.Quantities))
	total := decimal.Zero
	for key, value := range line.Quantities {
		quantities[key] = value.InexactFloat64()
		total = total.Add(value)
	}
	return rules.Facts{
		ProductID:       line.ProductID,
		TierID:          line.TierID,
		Quantity:        total.InexactFloat64(),
		Quantities:      quantities,
		ListPrice:       line.ListPrice.InexactFloat64(),
		Subtotal:        line.Subtotal.InexactFloat64(),
		DiscountPercent: line.DiscountPercent.InexactFloat64(),
		QuoteTotal:      quoteTotal,
	}
}

func violation(rule *pricebookdomain.PriceBookRule, productID string, actual decimal.Decimal) pricebookdomain.Violation {
	return pricebookdomain.Violation{
		RuleID:    rule.ID.String(),
		Rule:      rule.Name,
		ProductID: productID,
		Action:    rule.Action,
		Limit:     rule.Value,
		Actual:    actual,
	}
}

func validAction(action pricebookdomain.RuleAction) bool {
	switch action {
	case pricebookdomain.ActionMinQuantity, pricebookdomain.ActionMaxQuantity,
		pricebookdomain.ActionMaxDiscount, pricebookdomain.ActionRequireApproval:
		return true
	default:
		return false
	}
}

func validPercent(value decimal.Decimal) bool {
	return !value.IsNegative() && value.LessThanOrEqual(hundred)
}
