package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/yurifrl/budgetu/pkg/models"
)

// ParseJSON reads an array of objects, or an object whose "transactions"
// field holds one. Keys become headers in order of first appearance and every
// value is rendered as a string.
func (p *Parser) ParseJSON(data []byte, name string) (*models.Sheet, error) {
	items, err := jsonRecords(bytes.TrimPrefix(data, bom))
	if err != nil {
		return nil, err
	}

	var keys []string
	seen := make(map[string]bool)
	records := make([]map[string]string, 0, len(items))
	for i, raw := range items {
		rec, order, err := decodeRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		for _, k := range order {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
		records = append(records, rec)
	}

	p.logger.Debug("read json", "records", len(records), "keys", keys)
	return models.NewRecordSheet(name, keys, records), nil
}

func jsonRecords(data []byte) ([]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var wrapper struct {
			Transactions []json.RawMessage `json:"transactions"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, fmt.Errorf("invalid json: %w", err)
		}
		if wrapper.Transactions == nil {
			return nil, errors.New("invalid json: expected an array or a \"transactions\" field")
		}
		return wrapper.Transactions, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	return items, nil
}

// decodeRecord walks one object token by token so key order is kept.
func decodeRecord(raw json.RawMessage) (map[string]string, []string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected an object, got %s", raw)
	}

	rec := make(map[string]string)
	var order []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, _ := tok.(string)

		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, nil, fmt.Errorf("field %q: %w", key, err)
		}
		if _, dup := rec[key]; !dup {
			order = append(order, key)
		}
		rec[key] = stringify(v)
	}
	return rec, order, nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		if strings.ContainsAny(x.String(), "eE") {
			if f, err := x.Float64(); err == nil {
				return strconv.FormatFloat(f, 'f', -1, 64)
			}
		}
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
