package claimpdf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alnah/go-claimpdf/internal/dateutil"
)

// Canonical field names. The page template and the cell layout address
// fields by these names only.
const (
	FieldDealerName         = "dealerName"
	FieldDealerCode         = "dealerCode"
	FieldDealerAddress      = "dealerAddress"
	FieldContactName        = "contactName"
	FieldContactPhone       = "contactPhone"
	FieldContactEmail       = "contactEmail"
	FieldCustomerName       = "customerName"
	FieldVIN                = "vin"
	FieldModel              = "model"
	FieldRegistrationDate   = "registrationDate"
	FieldRepairDate         = "repairDate"
	FieldMileage            = "mileage"
	FieldComplaint          = "complaint"
	FieldCause              = "cause"
	FieldCorrection         = "correction"
	FieldCausalPartNumber   = "causalPartNumber"
	FieldCausalPartName     = "causalPartName"
	FieldCausalPartQuantity = "causalPartQuantity"
	FieldLaborCode          = "laborCode"
	FieldLaborHours         = "laborHours"
)

// Fields filled by the renderers rather than by the submission.
const (
	FieldDocumentID = "documentId"
	FieldDate       = "date"
)

// CanonicalFields lists every submission field in page order.
var CanonicalFields = []string{
	FieldDealerName, FieldDealerCode, FieldDealerAddress,
	FieldContactName, FieldContactPhone, FieldContactEmail,
	FieldCustomerName, FieldVIN, FieldModel,
	FieldRegistrationDate, FieldRepairDate, FieldMileage,
	FieldComplaint, FieldCause, FieldCorrection,
	FieldCausalPartNumber, FieldCausalPartName, FieldCausalPartQuantity,
	FieldLaborCode, FieldLaborHours,
}

// NarrativeFields hold free text rendered as Markdown on the primary path.
var NarrativeFields = []string{FieldComplaint, FieldCause, FieldCorrection}

// dateFields are reformatted to the display date format.
var dateFields = []string{FieldRegistrationDate, FieldRepairDate}

// fieldVariants lists, per canonical field, every key name callers have used
// for it. The first non-empty value in this order wins.
var fieldVariants = map[string][]string{
	FieldCausalPartQuantity: {"causalPartQuantity", "causalPartQty", "causal_part_quantity", "causalQty", "quantity"},
	FieldCausalPartNumber:   {"causalPartNumber", "causalPartNo", "causal_part_number", "partNumber"},
	FieldCausalPartName:     {"causalPartName", "causal_part_name", "partName"},
	FieldComplaint:          {"complaint", "customerComplaint", "customer_complaint", "symptom"},
	FieldCause:              {"cause", "diagnosis", "rootCause"},
	FieldCorrection:         {"correction", "repair", "repairDescription"},
	FieldVIN:                {"vin", "VIN", "chassisNumber"},
	FieldMileage:            {"mileage", "odometer", "km"},
	FieldDealerName:         {"dealerName", "dealer", "dealer_name"},
}

// FieldVariants returns the accepted key names for a canonical field, the
// canonical name first.
func FieldVariants(field string) []string {
	if v, ok := fieldVariants[field]; ok {
		return append([]string(nil), v...)
	}
	return []string{field}
}

// NormalizeFields reconciles raw submission fields to the canonical names.
// Every canonical field is present in the result, empty when no variant
// carried a value. Values are trimmed; line endings become "\n". Date
// fields are reformatted with dateFormat when they parse.
func NormalizeFields(raw map[string]string, dateFormat string) map[string]string {
	out := make(map[string]string, len(CanonicalFields))
	for _, field := range CanonicalFields {
		out[field] = firstNonEmpty(raw, FieldVariants(field))
	}
	if dateFormat != "" {
		for _, field := range dateFields {
			if v, err := dateutil.Reformat(out[field], dateFormat); err == nil {
				out[field] = v
			}
		}
	}
	return out
}

func firstNonEmpty(raw map[string]string, keys []string) string {
	for _, k := range keys {
		v := strings.TrimSpace(strings.ReplaceAll(raw[k], "\r\n", "\n"))
		if v != "" {
			return v
		}
	}
	return ""
}

// ResolveParts returns the claim's parts, decoding PartsJSON when Parts is
// empty. Rows with neither a part number nor a name are dropped.
func ResolveParts(c ClaimRecord) ([]AffectedPart, error) {
	parts := c.Parts
	if len(parts) == 0 && strings.TrimSpace(c.PartsJSON) != "" {
		var err error
		parts, err = ParsePartsJSON(c.PartsJSON)
		if err != nil {
			return nil, err
		}
	}
	out := make([]AffectedPart, 0, len(parts))
	for _, p := range parts {
		p.PartNumber = strings.TrimSpace(p.PartNumber)
		p.Name = strings.TrimSpace(p.Name)
		if p.PartNumber == "" && p.Name == "" {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// partKeys are the accepted keys of a JSON part object, in priority order.
var partKeys = struct {
	number, name, quantity []string
}{
	number:   []string{"partNumber", "partNo", "part_number", "number", "reference"},
	name:     []string{"name", "partName", "description", "designation"},
	quantity: []string{"quantity", "qty", "count"},
}

// ParsePartsJSON decodes a part list as sent by form callers. It accepts a
// bare array or an object with a "parts" array, numbers or strings for
// quantities, and several historical key names. The payload may itself be
// a JSON string holding the array.
func ParsePartsJSON(s string) ([]AffectedPart, error) {
	data := []byte(strings.TrimSpace(s))
	if len(data) == 0 {
		return nil, nil
	}

	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding parts: %w", err)
	}

	if str, ok := raw.(string); ok {
		return ParsePartsJSON(str)
	}
	if obj, ok := raw.(map[string]any); ok {
		raw = obj["parts"]
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("decoding parts: expected an array, got %T", raw)
	}

	parts := make([]AffectedPart, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		parts = append(parts, AffectedPart{
			PartNumber: stringOf(obj, partKeys.number),
			Name:       stringOf(obj, partKeys.name),
			Quantity:   quantityOf(obj, partKeys.quantity),
		})
	}
	return parts, nil
}

func stringOf(obj map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func quantityOf(obj map[string]any, keys []string) int {
	for _, k := range keys {
		var s string
		switch v := obj[k].(type) {
		case json.Number:
			s = v.String()
		case string:
			s = strings.TrimSpace(v)
		default:
			continue
		}
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int(math.Round(f))
		}
	}
	return 0
}
