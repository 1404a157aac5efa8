package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"finboard/internal/core"
	"finboard/internal/log"
)

var ErrUnrecognizedStatement = errors.New("could not parse expenses from statement")

// ImportStatement uploads a bank statement and replaces the expense rows
// with what the backend extracted. It returns the number of rows imported.
func (d *Dashboard) ImportStatement(ctx context.Context, filename string, r io.Reader) (int, error) {
	raw, err := d.api.UploadPDF(ctx, filename, r)
	if err != nil {
		return 0, fmt.Errorf("upload statement: %w", err)
	}
	rows, err := NormalizeExpenses(raw)
	if err != nil {
		return 0, err
	}
	d.state.ReplaceRows(rows)

	d.logger.InfoContext(ctx, "Statement imported",
		log.FieldOperation, log.OpImport,
		log.FieldExpenseCount, len(rows))
	return len(rows), nil
}

// NormalizeExpenses accepts either a list of {category, amount} objects or
// an object mapping category to amount, in document order. Amounts may be
// numbers or strings and are kept as typed; invalid ones are left for the
// projection to exclude.
func NormalizeExpenses(raw json.RawMessage) ([]core.ExpenseRow, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, ErrUnrecognizedStatement
	}

	switch raw[0] {
	case '[':
		var items []struct {
			Category string          `json:"category"`
			Amount   json.RawMessage `json:"amount"`
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognizedStatement, err)
		}
		rows := make([]core.ExpenseRow, 0, len(items))
		for _, it := range items {
			rows = append(rows, core.ExpenseRow{Category: it.Category, Amount: amountText(it.Amount)})
		}
		return rows, nil
	case '{':
		return normalizeObject(raw)
	default:
		return nil, ErrUnrecognizedStatement
	}
}

// normalizeObject walks the tokens so the rows keep the document's key
// order, which a map would lose.
func normalizeObject(raw json.RawMessage) ([]core.ExpenseRow, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedStatement, err)
	}

	var rows []core.ExpenseRow
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognizedStatement, err)
		}
		category, ok := tok.(string)
		if !ok {
			return nil, ErrUnrecognizedStatement
		}
		var amount json.RawMessage
		if err := dec.Decode(&amount); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognizedStatement, err)
		}
		rows = append(rows, core.ExpenseRow{Category: category, Amount: amountText(amount)})
	}
	if rows == nil {
		rows = []core.ExpenseRow{}
	}
	return rows, nil
}

func amountText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		return ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if f, err := strconv.ParseFloat(n.String(), 64); err == nil {
			return core.FormatAmount(f)
		}
		return n.String()
	}
	return ""
}
