package codegen

import (
	"github.com/xelth-com/riveredgego/internal/models"
)

// Template is a default rule seeded into every new tenant.
type Template struct {
	RuleCode    string
	Name        string
	Description string
	Expression  string
	Reset       string
}

// Templates is the built-in rule set for manufacturing tenants.
var Templates = []Template{
	{RuleCode: "WO", Name: "Work order", Description: "Work order number, daily sequence", Expression: "WO{YYYYMMDD}{SEQ:4}", Reset: models.ResetDaily},
	{RuleCode: "PO", Name: "Purchase order", Description: "Purchase order number, daily sequence", Expression: "PO{YYYYMMDD}{SEQ:4}", Reset: models.ResetDaily},
	{RuleCode: "SO", Name: "Sales order", Description: "Sales order number, daily sequence", Expression: "SO{YYYYMMDD}{SEQ:4}", Reset: models.ResetDaily},
	{RuleCode: "demand", Name: "Demand", Description: "Demand number, daily sequence", Expression: "DM{YYYYMMDD}{SEQ:4}", Reset: models.ResetDaily},
	{RuleCode: "MAT", Name: "Material", Description: "Material code", Expression: "MAT{SEQ:6}", Reset: models.ResetNever},
	{RuleCode: "CUST", Name: "Customer", Description: "Customer code", Expression: "CUST{SEQ:5}", Reset: models.ResetNever},
	{RuleCode: "SUP", Name: "Supplier", Description: "Supplier code", Expression: "SUP{SEQ:5}", Reset: models.ResetNever},
	{RuleCode: "PRD", Name: "Product", Description: "Product code", Expression: "PRD{SEQ:6}", Reset: models.ResetNever},
}

// Rule builds an unsaved rule from the template.
func (t Template) Rule() (*models.CodeRule, error) {
	components, err := ParseExpression(t.Expression, 1, 1, t.Reset)
	if err != nil {
		return nil, err
	}
	return &models.CodeRule{
		RuleCode:    t.RuleCode,
		Name:        t.Name,
		Description: t.Description,
		Expression:  t.Expression,
		Components:  components,
		IsActive:    true,
	}, nil
}
