package broker

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/seenimoa/papertrade/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Order Validation
// ════════════════════════════════════════════════════════════════════

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON name so messages match the API payload.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidationError represents an order validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationResult holds the results of order validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// IsValid returns true if the order passed all validation checks.
func (v *ValidationResult) IsValid() bool {
	return v.Valid && len(v.Errors) == 0
}

// ErrorString returns a combined error string.
func (v *ValidationResult) ErrorString() string {
	if v.IsValid() {
		return ""
	}
	msgs := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

func (v *ValidationResult) addError(field, message string) {
	v.Valid = false
	v.Errors = append(v.Errors, ValidationError{Field: field, Message: message})
}

// NormalizeRequest canonicalises the free-form parts of a request: the symbol
// is trimmed and upper-cased, and type, product and validity aliases
// ("mis", "stop", "nrml") are mapped to their canonical names. Values that do
// not parse are left alone for ValidateOrder to report.
func NormalizeRequest(req models.OrderRequest) models.OrderRequest {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if t, err := models.ParseOrderType(string(req.Type)); err == nil {
		req.Type = t
	}
	if p, err := models.ParseProductType(string(req.ProductType)); err == nil {
		req.ProductType = p
	}
	req.Validity = models.Validity(strings.ToUpper(strings.TrimSpace(string(req.Validity))))
	if req.Validity == "" {
		req.Validity = models.ValidityDay
	}
	return req
}

// ValidateOrder validates an OrderRequest for basic correctness.
func ValidateOrder(req models.OrderRequest) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if err := validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			result.addError("request", err.Error())
			return result
		}
		for _, fe := range fieldErrs {
			result.addError(fe.Field(), describe(fe))
		}
	}

	switch req.Type {
	case models.Market, models.Limit, models.SL, models.SLM:
	case "":
		// already reported as required
	default:
		result.addError("type", fmt.Sprintf("invalid order type %q", req.Type))
	}

	switch req.ProductType {
	case models.Intraday, models.CNC, models.Margin:
	case "":
	default:
		result.addError("product_type", fmt.Sprintf("invalid product type %q", req.ProductType))
	}

	switch req.Validity {
	case "", models.ValidityDay, models.ValidityIOC:
	default:
		result.addError("validity", fmt.Sprintf("invalid validity %q, must be DAY or IOC", req.Validity))
	}

	validatePrices(result, req.Type, req.LimitPrice, req.StopPrice, req.Side)
	return result
}

// validatePrices checks the price fields each order type depends on.
func validatePrices(result *ValidationResult, typ models.OrderType, limit, stop float64, side models.OrderSide) {
	switch typ {
	case models.Limit:
		if limit <= 0 {
			result.addError("limit_price", "limit price is required for LIMIT orders")
		}
	case models.SLM:
		if stop <= 0 {
			result.addError("stop_price", "stop price is required for SL-M orders")
		}
	case models.SL:
		if stop <= 0 {
			result.addError("stop_price", "stop price is required for SL orders")
		}
		if limit <= 0 {
			result.addError("limit_price", "limit price is required for SL orders")
		}
		if stop > 0 && limit > 0 {
			// A buy stop-limit triggers upward, so its limit cannot sit below
			// the trigger; the mirror holds for sells.
			if side == models.Buy && limit < stop {
				result.addError("limit_price", fmt.Sprintf("buy SL limit %.2f is below stop %.2f", limit, stop))
			}
			if side == models.Sell && limit > stop {
				result.addError("limit_price", fmt.Sprintf("sell SL limit %.2f is above stop %.2f", limit, stop))
			}
		}
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "oneof":
		if fe.Field() == "side" {
			return "must be 1 (BUY) or -1 (SELL)"
		}
		return "must be one of " + fe.Param()
	}
	return fe.Error()
}

// ValidateModifyOrder checks that o may be changed by req and that the order
// it would become is still well formed. It returns a wrapped sentinel error
// rather than a ValidationResult so callers can distinguish missing and
// frozen orders from bad input.
func ValidateModifyOrder(o *models.Order, req models.ModifyRequest) error {
	if o == nil {
		return ErrOrderNotFound
	}
	if o.Status != models.OrderPending {
		return fmt.Errorf("%w: %s is %s", ErrOrderCantModify, o.ID, o.Status)
	}
	if req.Qty < 0 || req.LimitPrice < 0 || req.StopPrice < 0 {
		return fmt.Errorf("%w: quantity and prices cannot be negative", ErrInvalidOrder)
	}
	if req.Qty > 0 && req.Qty < o.FilledQty {
		return fmt.Errorf("%w: qty %d is below filled %d", ErrInvalidOrder, req.Qty, o.FilledQty)
	}

	next := applyModify(*o, req)
	switch next.Type {
	case models.Market, models.Limit, models.SL, models.SLM:
	default:
		return fmt.Errorf("%w: invalid order type %q", ErrInvalidOrder, next.Type)
	}
	result := &ValidationResult{Valid: true}
	validatePrices(result, next.Type, next.LimitPrice, next.StopPrice, next.Side)
	if !result.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidOrder, result.ErrorString())
	}
	return nil
}

// applyModify returns o with the non-zero fields of req applied.
func applyModify(o models.Order, req models.ModifyRequest) models.Order {
	if req.Qty > 0 {
		o.Qty = req.Qty
		o.RemainingQty = req.Qty - o.FilledQty
	}
	if req.Type != "" {
		if t, err := models.ParseOrderType(string(req.Type)); err == nil {
			o.Type = t
		} else {
			o.Type = req.Type
		}
	}
	if req.LimitPrice > 0 {
		o.LimitPrice = req.LimitPrice
	}
	if req.StopPrice > 0 {
		o.StopPrice = req.StopPrice
	}
	return o
}
