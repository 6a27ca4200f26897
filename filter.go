package sheetstore

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Condition is a single filter on a record field.
type Condition struct {
	Column   string      // normalised field name
	Operator string      // ==, !=, >, >=, <, <=, in, between, contains
	Value    interface{} // []interface{} for in, two elements for between
}

// Query is a conjunction of conditions plus paging.
type Query struct {
	Conditions []Condition
	Limit      int
	Offset     int
}

var validOperators = map[string]bool{
	"==": true, "!=": true, ">": true, ">=": true, "<": true, "<=": true,
	"in": true, "between": true, "contains": true,
}

func evalCondition(record *Record, cond Condition) bool {
	value, exists := record.Values[cond.Column]
	if !exists {
		value = nil
	}

	switch cond.Operator {
	case "==":
		return compareEqual(value, cond.Value)
	case "!=":
		return !compareEqual(value, cond.Value)
	case ">":
		return compareOrdered(value, cond.Value, func(a, b float64) bool { return a > b })
	case ">=":
		return compareOrdered(value, cond.Value, func(a, b float64) bool { return a >= b })
	case "<":
		return compareOrdered(value, cond.Value, func(a, b float64) bool { return a < b })
	case "<=":
		return compareOrdered(value, cond.Value, func(a, b float64) bool { return a <= b })
	case "in":
		return compareIn(value, cond.Value)
	case "between":
		return compareBetween(value, cond.Value)
	case "contains":
		return listContains(value, cond.Value)
	default:
		return false
	}
}

// MatchesQuery reports whether a record satisfies every condition.
func (r *Record) MatchesQuery(query Query) bool {
	for _, cond := range query.Conditions {
		if !evalCondition(r, cond) {
			return false
		}
	}
	return true
}

// compareEqual treats numbers by value and everything else by string form, so
// a query parameter "42" matches a decoded int64(42) and "TRUE" matches true.
func compareEqual(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	fa, aok := toFloat64(a)
	fb, bok := toFloat64(b)
	if aok && bok {
		return fa == fb
	}
	_, aBool := a.(bool)
	_, bBool := b.(bool)
	if aBool || bBool {
		return strings.EqualFold(valueString(a), valueString(b))
	}
	return valueString(a) == valueString(b)
}

func compareOrdered(a, b interface{}, cmp func(a, b float64) bool) bool {
	fa, aok := toFloat64(a)
	fb, bok := toFloat64(b)
	if !aok || !bok {
		return false
	}
	return cmp(fa, fb)
}

func compareIn(a, b interface{}) bool {
	list, ok := b.([]interface{})
	if !ok {
		return false
	}
	for _, item := range list {
		if compareEqual(a, item) {
			return true
		}
	}
	return false
}

func compareBetween(a, b interface{}) bool {
	var lo, hi interface{}
	switch v := b.(type) {
	case [2]interface{}:
		lo, hi = v[0], v[1]
	case []interface{}:
		if len(v) != 2 {
			return false
		}
		lo, hi = v[0], v[1]
	default:
		return false
	}
	fa, aok := toFloat64(a)
	flo, lok := toFloat64(lo)
	fhi, hok := toFloat64(hi)
	if !aok || !lok || !hok {
		return false
	}
	return fa >= flo && fa <= fhi
}

// listContains matches when a comma separated cell holds the value as one of
// its items.
func listContains(a, b interface{}) bool {
	if a == nil || b == nil {
		return false
	}
	want := strings.TrimSpace(valueString(b))
	for _, item := range strings.Split(valueString(a), ",") {
		if strings.TrimSpace(item) == want {
			return true
		}
	}
	return false
}

func valueString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// toFloat64 converts numeric values, and strings that hold a finite number.
func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// ApplyQuery filters records and applies offset and limit.
func ApplyQuery(records []*Record, query Query) []*Record {
	results := make([]*Record, 0, len(records))
	for _, record := range records {
		if record.MatchesQuery(query) {
			results = append(results, record)
		}
	}

	if query.Offset > 0 {
		if query.Offset >= len(results) {
			return []*Record{}
		}
		results = results[query.Offset:]
	}
	if query.Limit > 0 && query.Limit < len(results) {
		results = results[:query.Limit]
	}
	return results
}

// ValidateQuery checks operators, operand shapes and paging.
func ValidateQuery(query Query) error {
	for i, cond := range query.Conditions {
		if cond.Column == "" {
			return fmt.Errorf("%w: empty column name in condition %d", ErrBadRequest, i)
		}
		if !validOperators[cond.Operator] {
			return fmt.Errorf("%w: invalid operator '%s' in condition %d", ErrBadRequest, cond.Operator, i)
		}
		switch cond.Operator {
		case "in":
			if _, ok := cond.Value.([]interface{}); !ok {
				return fmt.Errorf("%w: operator 'in' requires a list value in condition %d", ErrBadRequest, i)
			}
		case "between":
			ok := false
			switch v := cond.Value.(type) {
			case [2]interface{}:
				ok = true
			case []interface{}:
				ok = len(v) == 2
			}
			if !ok {
				return fmt.Errorf("%w: operator 'between' requires two bounds in condition %d", ErrBadRequest, i)
			}
		}
	}
	if query.Limit < 0 {
		return fmt.Errorf("%w: limit must be non-negative", ErrBadRequest)
	}
	if query.Offset < 0 {
		return fmt.Errorf("%w: offset must be non-negative", ErrBadRequest)
	}
	return nil
}

// ParamOptions controls how request parameters become a Query.
type ParamOptions struct {
	// Aliases maps a parameter name to a field name, e.g. bookingId -> booking_id.
	Aliases map[string]string
	// ListFields hold comma separated values; they match by membership.
	ListFields map[string]bool
}

// DefaultParamOptions carries the camelCase parameter names the booking
// frontend sends.
func DefaultParamOptions() ParamOptions {
	return ParamOptions{
		Aliases: map[string]string{
			"bookingId": "booking_id",
			"eventId":   "event_id",
			"userId":    "user_id",
			"tierId":    "tier_id",
			"venueId":   "venue_id",
			"circuitId": "circuit_id",

			"ticketId":       "ticket_id",
			"ticketQuantity": "ticket_quantity",
			"ticketPrice":    "ticket_price",
			"categoryId":     "category_id",

			"packageId":    "package_id",
			"packageType":  "package_type",
			"hotelId":      "hotel_id",
			"roomId":       "room_id",
			"roomCheckIn":  "room_check_in",
			"roomCheckOut": "room_check_out",
			"roomQuantity": "room_quantity",
			"roomPrice":    "room_price",

			"airportTransferId":       "airport_transfer_id",
			"airportTransferQuantity": "airport_transfer_quantity",
			"airportTransferPrice":    "airport_transfer_price",

			"circuitTransferId":       "circuit_transfer_id",
			"circuitTransferQuantity": "circuit_transfer_quantity",
			"circuitTransferPrice":    "circuit_transfer_price",

			"flightId":               "flight_id",
			"flightBookingReference": "flight_booking_reference",
			"ticketingDeadline":      "ticketing_deadline",
			"flightStatus":           "flight_status",
			"flightPrice":            "flight_price",

			"loungePassId":       "lounge_pass_id",
			"loungePassQuantity": "lounge_pass_quantity",
			"loungePassPrice":    "lounge_pass_price",

			"bookerName":         "booker_name",
			"bookerEmail":        "booker_email",
			"bookerPhone":        "booker_phone",
			"bookerAddress":      "booker_address",
			"leadTravellerName":  "lead_traveller_name",
			"leadTravellerEmail": "lead_traveller_email",
			"leadTravellerPhone": "lead_traveller_phone",

			"bookingDate":     "booking_date",
			"aquisition":      "acquisition",
			"atolAbtot":       "atol_abtot",
			"paymentCurrency": "payment_currency",
			"payment1":        "payment_1",
			"payment1Status":  "payment_1_status",
			"payment1Date":    "payment_1_date",
			"payment2":        "payment_2",
			"payment2Status":  "payment_2_status",
			"payment2Date":    "payment_2_date",
			"payment3":        "payment_3",
			"payment3Status":  "payment_3_status",
			"payment3Date":    "payment_3_date",
		},
		ListFields: map[string]bool{"package_id": true},
	}
}

// QueryFromParams turns request parameters into equality conditions. limit and
// offset are paging controls. Every other parameter filters the field it
// aliases to, or the field its normalised or snake_case name spells.
//
// When headers is non-nil, parameters that name no field of the sheet are
// ignored, so cache busters and unrelated parameters never empty a result.
func QueryFromParams(params url.Values, opts ParamOptions, headers []string) (Query, error) {
	var known map[string]bool
	if headers != nil {
		known = make(map[string]bool, len(headers))
		for _, h := range headers {
			if f := NormalizeHeader(h); f != "" {
				known[f] = true
			}
		}
	}

	var q Query
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := params.Get(name)
		switch name {
		case "limit", "offset":
			if value == "" {
				continue
			}
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return Query{}, fmt.Errorf("%w: %s must be a non-negative integer", ErrBadRequest, name)
			}
			if name == "limit" {
				q.Limit = n
			} else {
				q.Offset = n
			}
			continue
		}
		if value == "" {
			continue
		}
		field, ok := paramField(name, opts, known)
		if !ok {
			continue
		}
		op := "=="
		if opts.ListFields[field] {
			op = "contains"
		}
		q.Conditions = append(q.Conditions, Condition{Column: field, Operator: op, Value: value})
	}
	return q, nil
}

// paramField picks the first candidate field for a parameter that the sheet
// has. A nil known set accepts the first candidate.
func paramField(name string, opts ParamOptions, known map[string]bool) (string, bool) {
	candidates := make([]string, 0, 3)
	if alias, ok := opts.Aliases[name]; ok {
		candidates = append(candidates, alias)
	}
	candidates = append(candidates, NormalizeHeader(name), snakeCase(name))
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if known == nil || known[c] {
			return c, true
		}
	}
	return "", false
}

// snakeCase spells a camelCase name the way sheet headers are normalised:
// loginCount -> login_count.
func snakeCase(s string) string {
	var b strings.Builder
	var prev rune
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
		prev = r
	}
	return NormalizeHeader(b.String())
}
