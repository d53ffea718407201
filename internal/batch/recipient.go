package batch

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ctsbig "github.com/jrh3k5/walletops/internal/big"
	ctsio "github.com/jrh3k5/walletops/internal/io"
)

// Recipient is one payee of a batch. Amount is in whole tokens, e.g. "12.5".
type Recipient struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// Format is an encoding of a recipient list.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// FormatFromPath picks a Format from a file's extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return FormatCSV
	}

	return FormatJSON
}

type rawRecipient struct {
	Address string          `json:"address"`
	Amount  json.RawMessage `json:"amount"`
	Value   json.RawMessage `json:"value"`
}

// ParseRecipients reads a recipient list.
//
// JSON input is either an array of recipients or an object with a "recipients"
// array; each recipient's amount may be given as "amount" or "value", as a
// string or a number. CSV input has an address column and an amount column,
// with an optional header row.
func ParseRecipients(reader io.Reader, format Format) ([]Recipient, error) {
	reader = ctsio.StripUTF8BOM(reader)

	switch format {
	case FormatCSV:
		return parseCSV(reader)
	case FormatJSON:
		return parseJSON(reader)
	default:
		return nil, fmt.Errorf("unsupported recipient format: '%s'", format)
	}
}

func parseJSON(reader io.Reader) ([]Recipient, error) {
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipients: %w", err)
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("recipient list is empty")
	}

	var raws []rawRecipient
	if body[0] == '{' {
		var wrapper struct {
			Recipients []rawRecipient `json:"recipients"`
		}
		if err := json.Unmarshal(body, &wrapper); err != nil {
			return nil, fmt.Errorf("failed to decode recipients: %w", err)
		}
		raws = wrapper.Recipients
	} else if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("failed to decode recipients: %w", err)
	}

	recipients := make([]Recipient, 0, len(raws))
	for i, raw := range raws {
		amountField := raw.Amount
		if len(amountField) == 0 || string(amountField) == "null" {
			amountField = raw.Value
		}

		amount, err := jsonAmount(amountField)
		if err != nil {
			return nil, fmt.Errorf("recipient %d: %w", i+1, err)
		}

		recipients = append(recipients, Recipient{
			Address: strings.TrimSpace(raw.Address),
			Amount:  amount,
		})
	}

	return recipients, nil
}

// jsonAmount accepts an amount written either as a JSON string or a JSON number.
func jsonAmount(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return "", nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", fmt.Errorf("invalid amount %s: %w", trimmed, err)
		}

		return strings.TrimSpace(s), nil
	}

	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return "", fmt.Errorf("invalid amount %s: %w", trimmed, err)
	}

	return n.String(), nil
}

func parseCSV(reader io.Reader) ([]Recipient, error) {
	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1
	csvReader.TrimLeadingSpace = true

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read recipient CSV: %w", err)
	}

	if len(records) == 0 {
		return nil, errors.New("recipient list is empty")
	}

	addressColumn, amountColumn := 0, 1
	if first := records[0]; len(first) > 0 && !common.IsHexAddress(strings.TrimSpace(first[0])) {
		addressColumn, amountColumn = -1, -1
		for i, header := range first {
			switch strings.ToLower(strings.TrimSpace(header)) {
			case "address", "recipient", "to":
				addressColumn = i
			case "amount", "value":
				amountColumn = i
			}
		}

		if addressColumn < 0 || amountColumn < 0 {
			return nil, errors.New("recipient CSV header must name an address column and an amount column")
		}

		records = records[1:]
	}

	recipients := make([]Recipient, 0, len(records))
	for i, record := range records {
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}

		if len(record) <= max(addressColumn, amountColumn) {
			return nil, fmt.Errorf("recipient row %d has %d columns", i+1, len(record))
		}

		recipients = append(recipients, Recipient{
			Address: strings.TrimSpace(record[addressColumn]),
			Amount:  strings.TrimSpace(record[amountColumn]),
		})
	}

	return recipients, nil
}

// ValidateRecipients checks every recipient and returns the list with addresses in
// checksummed form and amounts in canonical decimal form. All problems are reported
// together in a *ValidationError.
func ValidateRecipients(recipients []Recipient) ([]Recipient, error) {
	if len(recipients) == 0 {
		return nil, &ValidationError{Problems: []string{"no recipients"}}
	}

	var problems []string
	seen := make(map[string]int, len(recipients))
	normalized := make([]Recipient, 0, len(recipients))

	for i, recipient := range recipients {
		position := i + 1

		address := strings.TrimSpace(recipient.Address)
		if !common.IsHexAddress(address) {
			problems = append(problems, fmt.Sprintf("recipient %d: invalid address '%s'", position, recipient.Address))
		} else {
			checksummed := common.HexToAddress(address)
			address = checksummed.Hex()

			if checksummed == (common.Address{}) {
				problems = append(problems, fmt.Sprintf("recipient %d: refusing to send to the zero address", position))
			}

			key := strings.ToLower(address)
			if previous, exists := seen[key]; exists {
				problems = append(problems, fmt.Sprintf("recipient %d: duplicate of recipient %d (%s)", position, previous, address))
			} else {
				seen[key] = position
			}
		}

		amount := recipient.Amount
		if strings.TrimSpace(amount) == "" {
			problems = append(problems, fmt.Sprintf("recipient %d: amount is required", position))
		} else if parsed, err := ctsbig.ParseAmount(amount); err != nil {
			problems = append(problems, fmt.Sprintf("recipient %d: %v", position, err))
		} else if !parsed.IsPositive() {
			problems = append(problems, fmt.Sprintf("recipient %d: amount must be positive, got '%s'", position, amount))
		} else {
			amount = parsed.String()
		}

		normalized = append(normalized, Recipient{Address: address, Amount: amount})
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	return normalized, nil
}
