package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SalesOrder is a customer order. Confirmed orders feed demands.
type SalesOrder struct {
	Base
	OrderCode    string          `gorm:"type:varchar(50);not null" json:"order_code" validate:"max=50"`
	CustomerName string          `gorm:"type:varchar(200);not null" json:"customer_name" validate:"required,max=200"`
	OrderDate    *time.Time      `json:"order_date,omitempty"`
	DeliveryDate *time.Time      `json:"delivery_date,omitempty"`
	TotalAmount  decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"total_amount"`
	Remarks      string          `gorm:"type:text" json:"remarks,omitempty" validate:"max=2000"`
	Status       Status          `gorm:"type:varchar(30);not null;index" json:"status"`
}

func (SalesOrder) TableName() string { return "crm_sales_orders" }

func (o *SalesOrder) CodeColumn() string          { return "order_code" }
func (o *SalesOrder) BusinessCode() string        { return o.OrderCode }
func (o *SalesOrder) SetBusinessCode(code string) { o.OrderCode = code }

func (o *SalesOrder) EntityType() string { return "sales_order" }
func (o *SalesOrder) GetStatus() Status  { return o.Status }
func (o *SalesOrder) SetStatus(s Status) { o.Status = s }
