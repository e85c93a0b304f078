package app

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"partyquiz-service/internal/domain"
)

// Template is the CSV shape the importer accepts. Correct answer(s) is a
// comma-separated list of 1-based answer indices.
const Template = `Question,Answer 1,Answer 2,Answer 3,Answer 4,Time limit (sec),Correct answer(s)
What is the capital of France?,Paris,Lyon,Marseille,Nice,30,1
`

const (
	maxQuestionLen   = 120
	maxAnswerLen     = 75
	maxAnswers       = 4
	defaultTimeLimit = 30
)

// ImportRow is one parsed CSV row.
type ImportRow struct {
	Question string `validate:"required"`
	Answers  [maxAnswers]string
	// TimeLimit is parsed and validated but, matching the observed storage
	// schema, not persisted.
	TimeLimit int `validate:"gte=0"`
	// Correct holds 1-based indices into Answers. Out-of-range indices are
	// inert: they simply never match an answer position.
	Correct []int
}

// RowIssue records a per-row or per-choice failure that did not stop the import.
type RowIssue struct {
	Row int    `json:"row"`
	Err string `json:"error"`
}

// Report summarizes an import run. Issues carries the rows and choices that
// failed while the rest of the batch proceeded.
type Report struct {
	QuizSet   *domain.QuizSet `json:"quizSet,omitempty"`
	Questions int             `json:"questions"`
	Choices   int             `json:"choices"`
	Issues    []RowIssue      `json:"issues,omitempty"`
}

// Importer bulk-loads a tabular quiz source into one quiz set.
//
// The load is forward-only and non-atomic: every successful step is durable
// immediately and there is no surrounding transaction, so a crash mid-import
// leaves the quiz set with a prefix of its questions. Creating the quiz set
// is all-or-nothing; from there each row is best-effort.
type Importer struct {
	store    Store
	validate *validator.Validate
}

func NewImporter(store Store) *Importer {
	return &Importer{store: store, validate: validator.New()}
}

// ParseCSV reads rows in the Template shape. Columns are located by header
// name, values are truncated to their bounded lengths, and unparsable correct
// indices are dropped.
func (i *Importer) ParseCSV(r io.Reader) ([]ImportRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for idx, name := range header {
		col[strings.TrimSpace(name)] = idx
	}
	if _, ok := col["Question"]; !ok {
		return nil, fmt.Errorf("csv header missing %q column", "Question")
	}

	field := func(record []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var rows []ImportRow
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", len(rows)+1, err)
		}

		row := ImportRow{
			Question:  truncate(field(record, "Question"), maxQuestionLen),
			TimeLimit: parseTimeLimit(field(record, "Time limit (sec)")),
			Correct:   parseCorrect(field(record, "Correct answer(s)")),
		}
		for a := 0; a < maxAnswers; a++ {
			row.Answers[a] = truncate(field(record, fmt.Sprintf("Answer %d", a+1)), maxAnswerLen)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Import persists rows as one quiz set with ordered questions and choices.
//
// An empty rows slice is a silent no-op: nothing is created and no error is
// returned. An empty name aborts before any state exists. If creating the
// quiz set fails the import stops there; after that, a failed question skips
// its row (its choices are never created) and a failed choice is recorded
// without stopping the rest.
func (i *Importer) Import(ctx context.Context, name string, rows []ImportRow) (Report, error) {
	if len(rows) == 0 {
		return Report{}, nil
	}
	if strings.TrimSpace(name) == "" {
		return Report{}, domain.ErrNameRequired
	}

	set, err := i.store.CreateQuizSet(ctx, name, "Imported from CSV")
	if err != nil {
		return Report{}, fmt.Errorf("create quiz set: %w", err)
	}
	report := Report{QuizSet: &set}

	for rowIdx, row := range rows {
		if err := i.validate.Struct(row); err != nil {
			report.Issues = append(report.Issues, RowIssue{Row: rowIdx + 1, Err: err.Error()})
			continue
		}

		question, err := i.store.CreateQuestion(ctx, domain.Question{
			QuizSetID: set.ID,
			Body:      row.Question,
			Order:     rowIdx,
		})
		if err != nil {
			report.Issues = append(report.Issues, RowIssue{Row: rowIdx + 1, Err: err.Error()})
			continue
		}
		report.Questions++

		correct := make(map[int]bool, len(row.Correct))
		for _, idx := range row.Correct {
			correct[idx] = true
		}
		for a, answer := range row.Answers {
			if answer == "" {
				continue
			}
			_, err := i.store.CreateChoice(ctx, domain.Choice{
				QuestionID: question.ID,
				Body:       answer,
				IsCorrect:  correct[a+1],
			})
			if err != nil {
				report.Issues = append(report.Issues, RowIssue{Row: rowIdx + 1, Err: err.Error()})
				continue
			}
			report.Choices++
		}
	}
	return report, nil
}

// DeriveName suggests a quiz set name from the first question when the caller
// offers none to prompt with.
func DeriveName(rows []ImportRow) string {
	if len(rows) == 0 {
		return "Imported Quiz"
	}
	if name := truncate(rows[0].Question, 30); name != "" {
		return name
	}
	return "Imported Quiz"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// cut on a rune boundary
	for max > 0 && !utf8RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

func parseTimeLimit(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultTimeLimit
	}
	return n
}

func parseCorrect(raw string) []int {
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n, err := strconv.Atoi(part); err == nil {
			out = append(out, n)
		}
	}
	return out
}
