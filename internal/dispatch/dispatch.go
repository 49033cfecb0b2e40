package dispatch

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Key identifies a dispatch order detail: the order and one of its sub orders
type Key struct {
	OrderID    string `json:"orderId"`
	SubOrderID string `json:"subOrderId"`
}

func (k Key) String() string {
	return k.OrderID + "/" + k.SubOrderID
}

// Validate checks that both parts of the key are present
func (k Key) Validate() error {
	if strings.TrimSpace(k.OrderID) == "" || strings.TrimSpace(k.SubOrderID) == "" {
		return errors.New("orderId and subOrderId are required")
	}
	return nil
}

// Line is one item of an order. JSON keys keep the column names stations
// have always read.
type Line struct {
	Item        int                 `json:"ITEM"`
	ProductCode string              `json:"Cod_Producto_Pedido"`
	Description string              `json:"Descripcion_pedido"`
	Unit        string              `json:"UM"`
	PackSize    string              `json:"Caja,omitempty"`
	InnerUnit   string              `json:"UE,omitempty"`
	Ordered     decimal.Decimal     `json:"Cantidad_a_Despachar"`
	Supplied    decimal.NullDecimal `json:"Cantidd_abastecida"`
	Scanned     decimal.Decimal     `json:"Cantidad_Scaneada"`
	Difference  decimal.Decimal     `json:"Diferencia"`
	Location    string              `json:"Ubicacion,omitempty"`
}

// TargetPolicy decides the target of lines with no supplied quantity
type TargetPolicy int

const (
	// TargetOrdered falls back to the ordered quantity
	TargetOrdered TargetPolicy = iota
	// TargetSuppliedOnly counts a missing supplied quantity as zero, so the
	// line takes no scans until the warehouse reports what it supplied
	TargetSuppliedOnly
)

// Target is the quantity to scan: the supplied quantity when known,
// otherwise whatever policy says
func (l Line) Target(policy TargetPolicy) decimal.Decimal {
	switch {
	case l.Supplied.Valid:
		return l.Supplied.Decimal
	case policy == TargetSuppliedOnly:
		return decimal.Zero
	}
	return l.Ordered
}

func (l *Line) updateDifference(policy TargetPolicy) {
	l.Difference = l.Target(policy).Sub(l.Scanned)
}

// Header holds the order header and the preparation timer
type Header struct {
	DocumentDate   string     `json:"fechaDoc"`
	OrderNumber    string     `json:"nroOD"`
	Customer       string     `json:"cliente"`
	Address        string     `json:"direccion"`
	Notes          string     `json:"obs"`
	PreparerCode   string     `json:"preparado_cod"`
	PreparerName   string     `json:"preparadoPor"`
	StartedAt      *time.Time `json:"inicio_dt"`
	FinishedAt     *time.Time `json:"fin_dt"`
	ElapsedMinutes *int       `json:"tprep_min"`
}

// Order is the stored snapshot of one dispatch detail
type Order struct {
	Key    Key    `json:"key"`
	Header Header `json:"header"`
	Lines  []Line `json:"lines"`

	// Labels holds every product|label pair already counted
	Labels map[string]bool `json:"labels"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func labelKey(productCode, labelID string) string {
	return productCode + "|" + labelID
}
