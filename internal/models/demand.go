package models

import (
	"github.com/shopspring/decimal"
)

const (
	DemandTypeSalesForecast = "sales_forecast"
	DemandTypeSalesOrder    = "sales_order"
)

// Demand is a planning requirement raised from a forecast or an order.
// SalesOrderUUID links demands of type sales_order to their order.
type Demand struct {
	Base
	DemandCode     string          `gorm:"type:varchar(50);not null" json:"demand_code" validate:"max=50"`
	Name           string          `gorm:"type:varchar(200);not null" json:"name" validate:"required,max=200"`
	DemandType     string          `gorm:"type:varchar(20);not null" json:"demand_type" validate:"required,oneof=sales_forecast sales_order"`
	SalesOrderUUID string          `gorm:"type:varchar(36);index" json:"sales_order_uuid,omitempty" validate:"omitempty,uuid"`
	CustomerName   string          `gorm:"type:varchar(200)" json:"customer_name,omitempty" validate:"max=200"`
	TotalQuantity  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total_quantity"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"total_amount"`
	Remarks        string          `gorm:"type:text" json:"remarks,omitempty" validate:"max=2000"`
	Status         Status          `gorm:"type:varchar(30);not null;index" json:"status"`
}

func (Demand) TableName() string { return "mes_demands" }

func (d *Demand) CodeColumn() string          { return "demand_code" }
func (d *Demand) BusinessCode() string        { return d.DemandCode }
func (d *Demand) SetBusinessCode(code string) { d.DemandCode = code }

func (d *Demand) EntityType() string { return "demand" }
func (d *Demand) GetStatus() Status  { return d.Status }
func (d *Demand) SetStatus(s Status) { d.Status = s }
