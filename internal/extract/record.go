package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Record is one transaction. Every field is either a value or null; none is
// omitted when encoded.
type Record struct {
	Amount          *float64 `json:"amount"`
	TransactionType *string  `json:"transaction_type"`
	BankName        *string  `json:"bank_name"`
	CardType        *string  `json:"card_type"`
	PaidTo          *string  `json:"paid_to"`
	Merchant        *string  `json:"merchant"`
	TransactionMode *string  `json:"transaction_mode"`
	TransactionDate *string  `json:"transaction_date"`
	ReferenceNumber *string  `json:"reference_number"`
	CategoryTag     *string  `json:"category_tag"`
}

// ErrMalformed is wrapped by Decode for answers that are not a JSON object or
// list of objects.
var ErrMalformed = errors.New("malformed model output")

// Decode parses a model answer into records. It tolerates Markdown fences,
// key spelling variants ("Transaction Mode", "paidTo") and amounts given as
// strings such as "Rs. 1,200".
func Decode(raw string) ([]Record, error) {
	clean := cleanModelJSON(raw)
	if clean == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformed)
	}

	var objs []map[string]json.RawMessage
	switch clean[0] {
	case '[':
		if err := json.Unmarshal([]byte(clean), &objs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(clean), &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		objs = append(objs, obj)
	default:
		return nil, fmt.Errorf("%w: not a JSON object or list", ErrMalformed)
	}
	if len(objs) == 0 {
		return nil, fmt.Errorf("%w: empty list", ErrMalformed)
	}

	out := make([]Record, 0, len(objs))
	for i, obj := range objs {
		r, err := recordFrom(obj)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrMalformed, i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func recordFrom(obj map[string]json.RawMessage) (Record, error) {
	fields := make(map[string]json.RawMessage, len(obj))
	for k, v := range obj {
		fields[normalizeKey(k)] = v
	}

	var (
		r   Record
		err error
	)
	if r.Amount, err = amountField(fields["amount"]); err != nil {
		return Record{}, err
	}
	for key, dst := range map[string]**string{
		"transaction_type": &r.TransactionType,
		"bank_name":        &r.BankName,
		"card_type":        &r.CardType,
		"paid_to":          &r.PaidTo,
		"merchant":         &r.Merchant,
		"transaction_mode": &r.TransactionMode,
		"transaction_date": &r.TransactionDate,
		"reference_number": &r.ReferenceNumber,
		"category_tag":     &r.CategoryTag,
	} {
		if *dst, err = stringField(fields[key]); err != nil {
			return Record{}, fmt.Errorf("%s: %w", key, err)
		}
	}
	return r, nil
}

// normalizeKey maps "Transaction Mode", "transaction-mode" and
// "transactionMode" to "transaction_mode".
func normalizeKey(k string) string {
	k = strings.TrimSpace(k)
	var b strings.Builder
	for i, c := range k {
		switch {
		case c == ' ' || c == '-':
			b.WriteByte('_')
		case c >= 'A' && c <= 'Z':
			if i > 0 && k[i-1] >= 'a' && k[i-1] <= 'z' {
				b.WriteByte('_')
			}
			b.WriteRune(c + ('a' - 'A'))
		default:
			b.WriteRune(c)
		}
	}
	switch s := b.String(); s {
	case "tag", "category":
		return "category_tag"
	case "paid_to_whom", "payee":
		return "paid_to"
	case "mode", "payment_mode":
		return "transaction_mode"
	default:
		return s
	}
}

func isNull(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) == 0 || bytes.Equal(v, []byte("null"))
}

func stringField(v json.RawMessage) (*string, error) {
	if isNull(v) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, "null") {
			return nil, nil
		}
		return &s, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		s := n.String()
		return &s, nil
	}
	return nil, fmt.Errorf("not a string: %s", v)
}

func amountField(v json.RawMessage) (*float64, error) {
	if isNull(v) {
		return nil, nil
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return &f, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil, fmt.Errorf("amount: not a number: %s", v)
	}
	digits := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, s)
	digits = strings.Trim(digits, ".")
	if digits == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	return &f, nil
}

// cleanModelJSON strips Markdown fences and any chatter around the first
// JSON value.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return ""
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	start := strings.IndexAny(s, "[{")
	if start == -1 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	if end := strings.LastIndexByte(s, closer); end > start {
		return s[start : end+1]
	}
	return s[start:]
}
