// Package practice serves the SQL practice question bank and checks answers
// against each question's reference solution.
package practice

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"sqlcoach/internal/model"
)

//go:embed questions.yaml
var embeddedBank []byte

// ErrQuestionNotFound is returned for an unknown question id.
var ErrQuestionNotFound = errors.New("Question not found")

type bankFile struct {
	Datasets  map[string]string `yaml:"datasets"`
	Questions []questionSpec    `yaml:"questions"`
}

type questionSpec struct {
	ID            int      `yaml:"id"`
	Title         string   `yaml:"title"`
	Difficulty    string   `yaml:"difficulty"`
	Description   string   `yaml:"description"`
	Dataset       string   `yaml:"dataset"`
	SetupSQL      string   `yaml:"setup_sql"`
	Tables        []string `yaml:"tables"`
	ExampleOutput string   `yaml:"example_output"`
	Hint          string   `yaml:"hint"`
	Solution      string   `yaml:"solution"`
}

// Question is a practice question with its private setup script.
type Question struct {
	model.Question
	SetupSQL string
}

// LoadBank parses a YAML question bank. An empty path loads the embedded one.
func LoadBank(path string) ([]Question, error) {
	data := embeddedBank
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read question bank: %w", err)
		}
		data = b
	}
	return ParseBank(data)
}

// ParseBank decodes and validates a question bank. Unknown keys are rejected.
func ParseBank(data []byte) ([]Question, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f bankFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	if len(f.Questions) == 0 {
		return nil, errors.New("question bank has no questions")
	}

	seen := make(map[int]bool, len(f.Questions))
	out := make([]Question, 0, len(f.Questions))
	for _, q := range f.Questions {
		if q.ID <= 0 {
			return nil, fmt.Errorf("question %q: id must be > 0", q.Title)
		}
		if seen[q.ID] {
			return nil, fmt.Errorf("question %d: duplicate id", q.ID)
		}
		seen[q.ID] = true

		if strings.TrimSpace(q.Title) == "" {
			return nil, fmt.Errorf("question %d: title is required", q.ID)
		}
		difficulty, ok := normalizeDifficulty(q.Difficulty)
		if !ok {
			return nil, fmt.Errorf("question %d: invalid difficulty %q (must be Easy|Medium|Hard)", q.ID, q.Difficulty)
		}

		setup := q.SetupSQL
		if q.Dataset != "" {
			if setup != "" {
				return nil, fmt.Errorf("question %d: set dataset or setup_sql, not both", q.ID)
			}
			ds, ok := f.Datasets[q.Dataset]
			if !ok {
				return nil, fmt.Errorf("question %d: unknown dataset %q", q.ID, q.Dataset)
			}
			setup = ds
		}
		if strings.TrimSpace(setup) == "" {
			return nil, fmt.Errorf("question %d: setup is required", q.ID)
		}
		if strings.TrimSpace(q.Solution) == "" {
			return nil, fmt.Errorf("question %d: solution is required", q.ID)
		}

		out = append(out, Question{
			Question: model.Question{
				ID:            q.ID,
				Title:         strings.TrimSpace(q.Title),
				Difficulty:    difficulty,
				Description:   strings.TrimSpace(q.Description),
				Tables:        q.Tables,
				ExampleOutput: strings.TrimRight(q.ExampleOutput, "\n"),
				Hint:          strings.TrimSpace(q.Hint),
				Solution:      strings.TrimSpace(q.Solution),
			},
			SetupSQL: setup,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func normalizeDifficulty(d string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case "easy":
		return model.Easy, true
	case "medium":
		return model.Medium, true
	case "hard":
		return model.Hard, true
	}
	return "", false
}
