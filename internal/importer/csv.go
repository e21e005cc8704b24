package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrEmptyFile     = errors.New("file is empty")
	ErrNoPhoneColumn = errors.New("no phone number column found in CSV headers")
)

// headerAliases maps canonical record fields to common spreadsheet
// column names, lowercased with separators collapsed to underscores.
var headerAliases = map[string][]string{
	"name": {
		"name", "full_name", "fullname", "contact_name", "contact",
		"first_name", "customer_name", "caller_name",
	},
	"phoneNumber": {
		"phone", "phone_number", "phonenumber", "mobile", "cell",
		"telephone", "tel", "number", "contact_number",
	},
	"email": {
		"email", "email_address", "e_mail", "emailaddress", "mail",
	},
	"referenceDate": {
		"reference_date", "referencedate", "ref_date", "date",
		"appointment_date", "callback_date", "due_date",
	},
}

// ParseCSV reads a headered CSV stream into raw contact records.
// Recognized columns map to the named record fields; unrecognized
// columns are preserved in the Fields bag under their normalized
// header name. The header row is required and the phone column must be
// identifiable.
func ParseCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, ErrEmptyFile
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := mapColumns(header)
	if _, ok := findColumn(columns, "phoneNumber"); !ok {
		return nil, ErrNoPhoneColumn
	}

	var records []Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", len(records)+2, err)
		}
		records = append(records, rowToRecord(columns, row))
	}
	return records, nil
}

// columnMapping ties one CSV column to either a canonical field or a
// custom field name.
type columnMapping struct {
	index  int
	field  string // canonical field, empty if custom
	custom string // normalized header for unrecognized columns
}

func mapColumns(header []string) []columnMapping {
	mappings := make([]columnMapping, 0, len(header))
	claimed := make(map[string]bool, len(headerAliases))

	for i, h := range header {
		normalized := normalizeHeader(h)
		m := columnMapping{index: i}

		for field, aliases := range headerAliases {
			if claimed[field] {
				continue
			}
			for _, alias := range aliases {
				if normalized == alias {
					m.field = field
					claimed[field] = true
					break
				}
			}
			if m.field != "" {
				break
			}
		}

		if m.field == "" && normalized != "" {
			m.custom = normalized
		}
		mappings = append(mappings, m)
	}
	return mappings
}

func findColumn(columns []columnMapping, field string) (int, bool) {
	for _, m := range columns {
		if m.field == field {
			return m.index, true
		}
	}
	return 0, false
}

func rowToRecord(columns []columnMapping, row []string) Record {
	var rec Record
	for _, m := range columns {
		if m.index >= len(row) {
			continue
		}
		value := strings.TrimSpace(row[m.index])
		switch m.field {
		case "name":
			rec.Name = value
		case "phoneNumber":
			rec.PhoneNumber = value
		case "email":
			rec.Email = value
		case "referenceDate":
			if value != "" {
				if rec.Fields == nil {
					rec.Fields = make(map[string]string)
				}
				rec.Fields["referenceDate"] = value
			}
		default:
			if m.custom != "" && value != "" {
				if rec.Fields == nil {
					rec.Fields = make(map[string]string)
				}
				rec.Fields[m.custom] = value
			}
		}
	}
	return rec
}

func normalizeHeader(header string) string {
	normalized := strings.ToLower(strings.TrimSpace(header))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")
	return normalized
}
