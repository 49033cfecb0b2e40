package picking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/dispatch-prep/internal/scanning"
)

// Accepted keys per logical field, in order of precedence. The backend has
// shipped several spellings of the same column over time.
var (
	itemAliases        = []string{"itemNumber", "ITEM"}
	productCodeAliases = []string{"productCode", "Cod_Producto_Pedido", "CodProductoPedido", "COD_PRODUCTO_PEDIDO"}
	descriptionAliases = []string{"description", "Descripcion_pedido", "Descripcion", "DESCRIPCION_PEDIDO"}
	unitAliases        = []string{"unitOfMeasure", "UM", "Um", "u_m"}
	packSizeAliases    = []string{"packSize", "Caja", "CAJA"}
	innerUnitAliases   = []string{"innerUnit", "UE", "Ue"}
	expectedAliases    = []string{"expectedQuantity", "Cantidad_a_Despachar", "Cantidad_A_Despachar", "CANTIDAD_A_DESPACHAR"}
	fulfilledAliases   = []string{"fulfilledQuantity", "Cantidd_abastecida", "Cantidad_abastecida", "Cantidad_Abastecida"}
	scannedAliases     = []string{"scannedQuantity", "Cantidad_Scaneada", "Cantidad_scaneada", "cantidad_scaneada", "CANTIDAD_SCANEADA"}
	locationAliases    = []string{"location", "Ubicacion", "UBICACION"}

	documentDateAliases     = []string{"documentDate", "fechaDoc"}
	orderNumberAliases      = []string{"orderNumber", "nroOD"}
	customerAliases         = []string{"customer", "cliente"}
	addressAliases          = []string{"address", "direccion"}
	notesAliases            = []string{"notes", "obs"}
	preparerCodeAliases     = []string{"preparerCode", "preparado_cod"}
	preparerNameAliases     = []string{"preparerName", "preparadoPor"}
	preparerAssignedAliases = []string{"preparerAssigned"}
	startedAtAliases        = []string{"startedAt", "inicio_dt"}
	finishedAtAliases       = []string{"finishedAt", "fin_dt"}
	elapsedAliases          = []string{"elapsedMinutes", "tprep_min"}
)

// timestampFormats are tried in order when reading header timestamps
var timestampFormats = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	time.RFC1123,
	"2006-01-02",
}

// pick returns the first present value among aliases. Null and the empty
// string count as absent.
func pick(row map[string]any, aliases []string) (any, bool) {
	for _, k := range aliases {
		v, ok := row[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

func pickString(row map[string]any, aliases []string) string {
	v, ok := pick(row, aliases)
	if !ok {
		return ""
	}
	return toString(v)
}

func pickQuantity(row map[string]any, aliases []string) decimal.Decimal {
	v, _ := pick(row, aliases)
	return ToQuantity(v)
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// ToQuantity coerces a loosely typed value into a quantity. Blank, missing,
// unparsable and non-finite values become zero so they never poison comparisons.
func ToQuantity(v any) decimal.Decimal {
	switch t := v.(type) {
	case nil:
		return decimal.Zero
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Zero
		}
		return decimal.NewFromFloat(t)
	case int:
		return decimal.NewFromInt(int64(t))
	case int64:
		return decimal.NewFromInt(t)
	case decimal.Decimal:
		return t
	case bool:
		return decimal.Zero
	}
	q, err := scanning.ParseQuantity(toString(v))
	if err != nil {
		return decimal.Zero
	}
	return q
}

func decodeObjects(data []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(dst)
}

// DecodeLines decodes a JSON array of detail rows. A null or empty payload
// yields no lines.
func DecodeLines(data []byte) ([]OrderLine, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []OrderLine{}, nil
	}

	var rows []map[string]any
	if err := decodeObjects(data, &rows); err != nil {
		return nil, fmt.Errorf("decoding detail rows: %w", err)
	}

	lines := make([]OrderLine, 0, len(rows))
	for i, row := range rows {
		lines = append(lines, lineFromRow(row, i))
	}
	return lines, nil
}

func lineFromRow(row map[string]any, idx int) OrderLine {
	item := pickString(row, itemAliases)
	if item == "" {
		item = strconv.Itoa(idx + 1)
	}

	expected := pickQuantity(row, expectedAliases)

	// The supplied quantity wins over the ordered one whenever it is reported
	fulfilled := expected
	if v, ok := pick(row, fulfilledAliases); ok {
		fulfilled = ToQuantity(v)
	}

	return OrderLine{
		ItemNumber:        item,
		ProductCode:       pickString(row, productCodeAliases),
		Description:       pickString(row, descriptionAliases),
		UnitOfMeasure:     pickString(row, unitAliases),
		PackSize:          pickString(row, packSizeAliases),
		InnerUnit:         pickString(row, innerUnitAliases),
		ExpectedQuantity:  expected,
		FulfilledQuantity: fulfilled,
		ScannedQuantity:   pickQuantity(row, scannedAliases),
		Location:          pickString(row, locationAliases),
		Attributes:        row,
	}
}

// DecodeHeader decodes a JSON header object
func DecodeHeader(data []byte) (*Header, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return &Header{Attributes: map[string]any{}}, nil
	}

	var row map[string]any
	if err := decodeObjects(data, &row); err != nil {
		return nil, fmt.Errorf("decoding header: %w", err)
	}

	h := &Header{
		DocumentDate: pickString(row, documentDateAliases),
		OrderNumber:  pickString(row, orderNumberAliases),
		Customer:     pickString(row, customerAliases),
		Address:      pickString(row, addressAliases),
		Notes:        pickString(row, notesAliases),
		PreparerCode: strings.TrimSpace(pickString(row, preparerCodeAliases)),
		PreparerName: strings.TrimSpace(pickString(row, preparerNameAliases)),
		StartedAt:    pickTimestamp(row, startedAtAliases),
		FinishedAt:   pickTimestamp(row, finishedAtAliases),
		Attributes:   row,
	}

	if v, ok := pick(row, preparerAssignedAliases); ok {
		h.PreparerAssigned = truthy(v)
	} else {
		h.PreparerAssigned = h.PreparerCode != "" || (h.PreparerName != "" && h.PreparerName != "-")
	}

	if v, ok := pick(row, elapsedAliases); ok {
		minutes := int(ToQuantity(v).Round(0).IntPart())
		h.ElapsedMinutes = &minutes
	}

	return h, nil
}

// pickTimestamp returns nil when no alias holds a non-blank value. A value
// that is present but unparsable still marks the event as recorded.
func pickTimestamp(row map[string]any, aliases []string) *time.Time {
	s := strings.TrimSpace(pickString(row, aliases))
	if s == "" {
		return nil
	}
	for _, layout := range timestampFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return &time.Time{}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	default:
		return ToQuantity(v).IsPositive()
	}
}
