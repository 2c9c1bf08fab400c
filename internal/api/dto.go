package api

import (
	"time"

	"github.com/pickflow/separation/internal/orders"
	"github.com/pickflow/separation/internal/pdf"
)

type orderSummaryDTO struct {
	ID                 int64   `json:"id"`
	OrderNumber        string  `json:"order_number"`
	ClientName         string  `json:"client_name"`
	SellerName         string  `json:"seller_name"`
	OrderDate          string  `json:"order_date"`
	TotalValue         string  `json:"total_value"`
	LogisticsType      string  `json:"logistics_type"`
	PackageType        string  `json:"package_type"`
	Status             string  `json:"status"`
	ItemsCount         int     `json:"items_count"`
	ItemsSeparated     int     `json:"items_separated"`
	ItemsInPurchase    int     `json:"items_in_purchase"`
	ItemsNotSent       int     `json:"items_not_sent"`
	ProgressPercentage float64 `json:"progress_percentage"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

func toOrderSummary(o *orders.Order) orderSummaryDTO {
	return orderSummaryDTO{
		ID:                 o.ID,
		OrderNumber:        o.OrderNumber,
		ClientName:         o.ClientName,
		SellerName:         o.SellerName,
		OrderDate:          o.OrderDate.Format("2006-01-02"),
		TotalValue:         o.TotalValue.StringFixed(2),
		LogisticsType:      string(o.LogisticsType),
		PackageType:        string(o.PackageType),
		Status:             string(o.Status),
		ItemsCount:         o.ItemsCount,
		ItemsSeparated:     o.ItemsSeparated,
		ItemsInPurchase:    o.ItemsInPurchase,
		ItemsNotSent:       o.ItemsNotSent,
		ProgressPercentage: orders.ProgressPercentage(o),
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
		CompletedAt:        o.CompletedAt,
	}
}

type orderItemDTO struct {
	ID               int64      `json:"id"`
	ProductCode      string     `json:"product_code"`
	ProductReference string     `json:"product_reference"`
	ProductName      string     `json:"product_name"`
	Quantity         int        `json:"quantity"`
	UnitPrice        string     `json:"unit_price"`
	TotalPrice       string     `json:"total_price"`
	IsSeparated      bool       `json:"is_separated"`
	SeparatedAt      *time.Time `json:"separated_at,omitempty"`
	SentToPurchase   bool       `json:"sent_to_purchase"`
	PurchaseAt       *time.Time `json:"purchase_at,omitempty"`
	NotSent          bool       `json:"not_sent"`
	NotSentAt        *time.Time `json:"not_sent_at,omitempty"`
	NotSentReason    string     `json:"not_sent_reason,omitempty"`
}

type orderDetailDTO struct {
	orderSummaryDTO
	Observations string         `json:"observations"`
	Items        []orderItemDTO `json:"items"`
}

func toOrderDetail(o *orders.Order) orderDetailDTO {
	items := make([]orderItemDTO, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemDTO{
			ID:               item.ID,
			ProductCode:      item.ProductCode,
			ProductReference: item.ProductReference,
			ProductName:      item.ProductName,
			Quantity:         item.Quantity,
			UnitPrice:        item.UnitPrice.StringFixed(2),
			TotalPrice:       item.TotalPrice.StringFixed(2),
			IsSeparated:      item.IsSeparated,
			SeparatedAt:      item.SeparatedAt,
			SentToPurchase:   item.SentToPurchase,
			PurchaseAt:       item.PurchaseAt,
			NotSent:          item.NotSent,
			NotSentAt:        item.NotSentAt,
			NotSentReason:    item.NotSentReason,
		})
	}
	return orderDetailDTO{
		orderSummaryDTO: toOrderSummary(o),
		Observations:    o.Observations,
		Items:           items,
	}
}

type parsedItemDTO struct {
	ProductCode      string `json:"product_code"`
	ProductReference string `json:"product_reference"`
	ProductName      string `json:"product_name"`
	Quantity         int    `json:"quantity"`
	UnitPrice        string `json:"unit_price"`
	TotalPrice       string `json:"total_price"`
}

type parsedOrderDTO struct {
	OrderNumber    string              `json:"order_number"`
	ClientName     string              `json:"client_name"`
	SellerName     string              `json:"seller_name"`
	OrderDate      string              `json:"order_date"`
	TotalValue     string              `json:"total_value"`
	Items          []parsedItemDTO     `json:"items"`
	ValidationInfo pdf.ValidationInfo  `json:"validation_info"`
}

func toParsedOrder(p *pdf.ParsedOrder) parsedOrderDTO {
	items := make([]parsedItemDTO, 0, len(p.Items))
	for _, item := range p.Items {
		items = append(items, parsedItemDTO{
			ProductCode:      item.ProductCode,
			ProductReference: item.ProductReference,
			ProductName:      item.ProductName,
			Quantity:         item.Quantity,
			UnitPrice:        item.UnitPrice.StringFixed(2),
			TotalPrice:       item.TotalPrice.StringFixed(2),
		})
	}
	return parsedOrderDTO{
		OrderNumber:    p.OrderNumber,
		ClientName:     p.ClientName,
		SellerName:     p.SellerName,
		OrderDate:      p.OrderDate.Format("2006-01-02"),
		TotalValue:     p.TotalValue.StringFixed(2),
		Items:          items,
		ValidationInfo: p.Validation,
	}
}
