package handlers

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xelth-com/riveredgego/internal/apperr"
	"github.com/xelth-com/riveredgego/internal/codegen"
	"github.com/xelth-com/riveredgego/internal/crud"
	"github.com/xelth-com/riveredgego/internal/models"
	"github.com/xelth-com/riveredgego/internal/statemachine"
	"github.com/xelth-com/riveredgego/internal/store"
)

func nonNegative(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return apperr.Validation("%s: cannot be negative", field)
	}
	return nil
}

var demandDefinition = crud.Definition[models.Demand]{
	EntityType:    "demand",
	CodeRule:      "demand",
	InitialStatus: models.StatusDraft,
	Filters: map[string]crud.Filter{
		"status":           crud.Status("status"),
		"demand_type":      crud.OneOf("demand_type", models.DemandTypeSalesForecast, models.DemandTypeSalesOrder),
		"name":             crud.Contains("name"),
		"demand_code":      crud.Equals("demand_code"),
		"sales_order_uuid": crud.Equals("sales_order_uuid"),
	},
	Defaults: func(d *models.Demand) {
		d.DemandType = models.DemandTypeSalesForecast
	},
	Check: func(ctx context.Context, tx *store.Store, d *models.Demand) error {
		if err := nonNegative("total_quantity", d.TotalQuantity); err != nil {
			return err
		}
		if err := nonNegative("total_amount", d.TotalAmount); err != nil {
			return err
		}
		if d.SalesOrderUUID == "" {
			return nil
		}
		// Soft-deleted orders cannot be referenced.
		err := tx.FindByUUID(ctx, &models.SalesOrder{}, d.SalesOrderUUID)
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.Validation("sales_order_uuid: no such sales order")
		}
		return err
	},
}

var salesOrderDefinition = crud.Definition[models.SalesOrder]{
	EntityType:    "sales_order",
	CodeRule:      "SO",
	InitialStatus: models.StatusDraft,
	Filters: map[string]crud.Filter{
		"status":        crud.Status("status"),
		"customer_name": crud.Contains("customer_name"),
		"order_code":    crud.Equals("order_code"),
	},
	Check: func(ctx context.Context, tx *store.Store, o *models.SalesOrder) error {
		if err := nonNegative("total_amount", o.TotalAmount); err != nil {
			return err
		}
		if o.OrderDate != nil && o.DeliveryDate != nil && o.DeliveryDate.Before(*o.OrderDate) {
			return apperr.Validation("delivery_date: cannot be before order_date")
		}
		return nil
	},
}

var codeRuleDefinition = crud.Definition[models.CodeRule]{
	EntityType: "code_rule",
	Filters: map[string]crud.Filter{
		"rule_code": crud.Equals("rule_code"),
		"name":      crud.Contains("name"),
		"is_active": crud.Bool("is_active"),
	},
	Defaults: func(r *models.CodeRule) {
		r.IsActive = true
	},
	Check: func(ctx context.Context, tx *store.Store, r *models.CodeRule) error {
		components, err := codegen.Validate(r.Components)
		if err != nil {
			return err
		}
		r.Components = components
		return nil
	},
}

var transitionRuleDefinition = crud.Definition[models.TransitionRule]{
	EntityType: "transition_rule",
	Filters: map[string]crud.Filter{
		"entity_type": crud.Equals("entity_type"),
		"from_state":  crud.Status("from_state"),
		"to_state":    crud.Status("to_state"),
		"is_active":   crud.Bool("is_active"),
	},
	Defaults: func(r *models.TransitionRule) {
		r.IsActive = true
	},
	Check: func(ctx context.Context, tx *store.Store, r *models.TransitionRule) error {
		return statemachine.PrepareRule(r)
	},
}

func (r *Router) buildServices() error {
	var err error
	db, codes, engine := r.deps.DB, r.deps.Codes, r.deps.Engine
	if r.demands, err = crud.NewService[models.Demand, *models.Demand](db, codes, engine, demandDefinition); err != nil {
		return err
	}
	if r.salesOrders, err = crud.NewService[models.SalesOrder, *models.SalesOrder](db, codes, engine, salesOrderDefinition); err != nil {
		return err
	}
	if r.codeRules, err = crud.NewService[models.CodeRule, *models.CodeRule](db, codes, engine, codeRuleDefinition); err != nil {
		return err
	}
	r.rules, err = crud.NewService[models.TransitionRule, *models.TransitionRule](db, codes, engine, transitionRuleDefinition)
	return err
}
