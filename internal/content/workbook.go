package content

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/danieldreier/mcp-studycoach/internal/assessment"
	"github.com/xuri/excelize/v2"
)

// listSeparator splits multi-valued cells such as options and answers.
const listSeparator = "|"

// ImportConfig describes where item fields live in a spreadsheet.
type ImportConfig struct {
	FilePath      string // .xlsx or .csv
	DeckName      string
	SheetName     string
	StartRow      int // 1-based
	SubjectColumn string
	TopicColumn   string
	FrontColumn   string
	BackColumn    string
	KindColumn    string // choice, true_false or fill_in; empty for plain cards
	PointsColumn  string
	OptionsColumn string // choice options separated by "|"
	AnswerColumn  string // correct indexes, true/false, or accepted tokens separated by "|"
}

// DefaultImportConfig returns the column layout written by ExportTemplate.
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		SheetName:     "Sheet1",
		StartRow:      2,
		SubjectColumn: "A",
		TopicColumn:   "B",
		FrontColumn:   "C",
		BackColumn:    "D",
		KindColumn:    "E",
		PointsColumn:  "F",
		OptionsColumn: "G",
		AnswerColumn:  "H",
	}
}

// ImportResult reports what happened to each processed row.
type ImportResult struct {
	TotalProcessed int
	Imported       int
	Skipped        int
	Errors         []string
}

// ImportWorkbook reads items from a spreadsheet. Invalid rows are reported in
// the result and skipped; only unreadable files fail the import.
func ImportWorkbook(config ImportConfig) (*Deck, *ImportResult, error) {
	var (
		rows [][]string
		err  error
	)
	if strings.ToLower(filepath.Ext(config.FilePath)) == ".csv" {
		rows, err = readCSVRows(config.FilePath)
	} else {
		rows, err = readExcelRows(config.FilePath, config.SheetName)
	}
	if err != nil {
		return nil, nil, err
	}

	result := &ImportResult{Errors: make([]string, 0)}
	items := make([]Item, 0, len(rows))
	seen := make(map[string]int)

	for i, row := range rows {
		rowNum := i + 1
		if rowNum < config.StartRow || blankRow(row) {
			continue
		}
		result.TotalProcessed++

		item, err := parseRow(row, config)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
			continue
		}
		if first, dup := seen[item.ID]; dup {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: duplicate of row %d", rowNum, first))
			continue
		}
		seen[item.ID] = rowNum
		items = append(items, item)
		result.Imported++
	}

	name := config.DeckName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(config.FilePath), filepath.Ext(config.FilePath))
	}
	deck, err := NewDeck(name, items)
	if err != nil {
		return nil, result, fmt.Errorf("failed to build deck: %w", err)
	}
	return deck, result, nil
}

// ExportTemplate writes an empty workbook with the default header row.
func ExportTemplate(path string) error {
	f := excelize.NewFile()
	defer f.Close()

	headers := []string{"subject", "topic", "front", "back", "kind", "points", "options", "answer"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue("Sheet1", cell, h); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func readExcelRows(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	return rows, nil
}

func readCSVRows(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(row []string, config ImportConfig) (Item, error) {
	cell := func(column string) string {
		if column == "" {
			return ""
		}
		idx, err := excelize.ColumnNameToNumber(column)
		if err != nil || idx-1 >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx-1])
	}

	item := Item{
		Subject: ParseSubject(cell(config.SubjectColumn)),
		Topic:   cell(config.TopicColumn),
		Front:   cell(config.FrontColumn),
		Back:    cell(config.BackColumn),
	}
	if item.Front == "" {
		return Item{}, errors.New("front cannot be empty")
	}
	if item.Topic == "" {
		return Item{}, errors.New("topic cannot be empty")
	}

	if kind := strings.ToLower(cell(config.KindColumn)); kind != "" {
		def, err := parseQuestion(assessment.Kind(kind), cell(config.PointsColumn), cell(config.OptionsColumn), cell(config.AnswerColumn))
		if err != nil {
			return Item{}, err
		}
		item.Question = def
	}

	item.ID = StableID(item.Subject, item.Topic, item.Front)
	return item, nil
}

func parseQuestion(kind assessment.Kind, points, options, answer string) (*assessment.Definition, error) {
	def := &assessment.Definition{Kind: kind, Points: 1}
	if points != "" {
		n, err := strconv.Atoi(points)
		if err != nil {
			return nil, fmt.Errorf("invalid points %q", points)
		}
		def.Points = n
	}

	switch kind {
	case assessment.KindChoice:
		def.Options = splitList(options)
		for _, raw := range splitList(answer) {
			idx, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid choice index %q", raw)
			}
			def.Correct = append(def.Correct, idx)
		}
	case assessment.KindTrueFalse:
		switch strings.ToLower(answer) {
		case "true", "t", "yes", "y":
			def.Correct = []int{0}
		case "false", "f", "no", "n":
			def.Correct = []int{1}
		default:
			return nil, fmt.Errorf("invalid true/false answer %q", answer)
		}
	case assessment.KindFillIn:
		def.Accepted = splitList(answer)
	}

	if _, err := def.Build(); err != nil {
		return nil, err
	}
	return def, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, listSeparator) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
