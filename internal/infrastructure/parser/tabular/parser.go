package tabular

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/olegkarev/testcase-search/internal/core/domain"
)

// Column headers recognized in uploaded spreadsheets. Matching is
// case-insensitive and whitespace-tolerant.
const (
	colTestCaseID  = "test case id"
	colFeature     = "feature"
	colDescription = "test case description"
	colPrereq      = "pre-requisites"
	colStepNo      = "step no."
	colTestStep    = "test step"
	colExpected    = "expected result"
	colTags        = "tags"
	colPriority    = "priority"
	colPlatform    = "platform"
)

// Parser reads CSV/XLSX test-case exports. Multi-row test cases share a
// Test Case ID: blank IDs forward-fill from the row above, each row with
// a non-empty Test Step contributes one ordered step.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(_ context.Context, filename string, data io.Reader) ([]domain.TestCase, error) {
	var rows [][]string
	var err error

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		rows, err = readCSV(data)
	case ".xlsx":
		rows, err = readXLSX(data)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filename)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("file has no data rows")
	}

	header := indexHeader(rows[0])
	idCol, ok := header[colTestCaseID]
	if !ok {
		return nil, fmt.Errorf("file must contain a 'Test Case ID' column")
	}

	cell := func(row []string, name string) string {
		idx, ok := header[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	order := make([]string, 0, len(rows))
	grouped := make(map[string]*domain.TestCase, len(rows))
	lastID := ""

	for _, row := range rows[1:] {
		id := ""
		if idCol < len(row) {
			id = strings.TrimSpace(row[idCol])
		}
		if id == "" {
			id = lastID
		} else {
			lastID = id
		}
		if id == "" || strings.EqualFold(id, "na") {
			continue
		}

		tc, exists := grouped[id]
		if !exists {
			tc = &domain.TestCase{
				TestCaseID:    id,
				Feature:       cell(row, colFeature),
				Description:   cell(row, colDescription),
				Prerequisites: cell(row, colPrereq),
				Tags:          splitTags(cell(row, colTags)),
				Priority:      domain.ParsePriority(cell(row, colPriority)),
				Platform:      cell(row, colPlatform),
				Status:        domain.RecordStatusPending,
			}
			grouped[id] = tc
			order = append(order, id)
		}

		action := cell(row, colTestStep)
		if action == "" {
			continue
		}
		number := len(tc.Steps) + 1
		if n, err := strconv.Atoi(cell(row, colStepNo)); err == nil && n > 0 {
			number = n
		}
		tc.Steps = append(tc.Steps, domain.Step{
			Number:   number,
			Action:   action,
			Expected: cell(row, colExpected),
		})
	}

	out := make([]domain.TestCase, 0, len(order))
	for _, id := range order {
		out = append(out, *grouped[id])
	}
	return out, nil
}

func readCSV(data io.Reader) ([][]string, error) {
	reader := csv.NewReader(data)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rows, nil
}

func readXLSX(data io.Reader) ([][]string, error) {
	book, err := excelize.OpenReader(data)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx has no sheets")
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read xlsx rows: %w", err)
	}
	return rows, nil
}

func indexHeader(header []string) map[string]int {
	out := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		if _, exists := out[key]; !exists {
			out[key] = i
		}
	}
	return out
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if tag := strings.TrimSpace(part); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
