package models

// PartialUniqueIndex is a uniqueness constraint that ignores soft-deleted rows.
type PartialUniqueIndex struct {
	Name    string
	Table   string
	Columns []string
	Where   string
}

// PartialUniqueIndexes lists the natural keys enforced per tenant.
func PartialUniqueIndexes() []PartialUniqueIndex {
	live := "deleted_at IS NULL"
	return []PartialUniqueIndex{
		{Name: "ux_code_rules_tenant_code", Table: CodeRule{}.TableName(), Columns: []string{"tenant_id", "rule_code"}, Where: live},
		{Name: "ux_transition_rules_edge", Table: TransitionRule{}.TableName(), Columns: []string{"tenant_id", "entity_type", "from_state", "to_state"}, Where: live},
		{Name: "ux_demands_tenant_code", Table: Demand{}.TableName(), Columns: []string{"tenant_id", "demand_code"}, Where: live},
		{Name: "ux_sales_orders_tenant_code", Table: SalesOrder{}.TableName(), Columns: []string{"tenant_id", "order_code"}, Where: live},
		{Name: "ux_users_tenant_username", Table: User{}.TableName(), Columns: []string{"tenant_id", "username"}, Where: "tenant_id IS NOT NULL AND " + live},
		{Name: "ux_users_platform_username", Table: User{}.TableName(), Columns: []string{"username"}, Where: "tenant_id IS NULL AND " + live},
	}
}

// AllModels is the migration set.
func AllModels() []interface{} {
	return []interface{}{
		&Tenant{},
		&User{},
		&CodeRule{},
		&CodeSequence{},
		&TransitionRule{},
		&TransitionLog{},
		&Demand{},
		&SalesOrder{},
	}
}
