package services

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/edplatform/grading-service/internal/models"
	"github.com/shopspring/decimal"
)

// EvaluationResult is the outcome of scoring one answer. Either the answer
// was auto-graded (IsCorrect and PointsEarned are meaningful) or it needs an
// instructor (PendingManual, nothing else set).
type EvaluationResult struct {
	PendingManual bool
	IsCorrect     bool
	PointsEarned  decimal.Decimal
}

func autoGraded(correct bool, points int) EvaluationResult {
	res := EvaluationResult{IsCorrect: correct}
	if correct {
		res.PointsEarned = decimal.NewFromInt(int64(points))
	}
	return res
}

func pendingManual() EvaluationResult {
	return EvaluationResult{PendingManual: true}
}

// EvaluateAnswer scores a single answer against its question. Pure: no
// clock, no storage, same inputs always produce the same result. Malformed
// or missing payloads grade as incorrect rather than erroring; only essay
// questions and keyless text questions defer to manual grading.
func EvaluateAnswer(question *models.Question, answer *models.QuizAnswer) EvaluationResult {
	switch question.Type {
	case models.MultipleChoice, models.TrueFalse:
		return evaluateSingleChoice(question, answer)
	case models.MultipleSelect:
		return evaluateMultiSelect(question, answer)
	case models.ShortAnswer, models.FillInBlank:
		return evaluateText(question, answer)
	case models.Numeric:
		return evaluateNumeric(question, answer)
	case models.Matching:
		return evaluateMatching(question, answer)
	case models.Ordering:
		return evaluateOrdering(question, answer)
	case models.Essay:
		return pendingManual()
	default:
		return pendingManual()
	}
}

// evaluateSingleChoice awards full points when the selected option is one of
// the options flagged correct. Zero or multiple flagged-correct rows are
// tolerated: the submitted ID is simply tested for membership.
func evaluateSingleChoice(question *models.Question, answer *models.QuizAnswer) EvaluationResult {
	if answer.SelectedOptionID == nil {
		return autoGraded(false, question.Points)
	}
	for _, id := range question.CorrectOptionIDs() {
		if id == *answer.SelectedOptionID {
			return autoGraded(true, question.Points)
		}
	}
	return autoGraded(false, question.Points)
}

// evaluateMultiSelect requires the submitted set to equal the flagged-correct
// set exactly. All or nothing, no partial credit.
func evaluateMultiSelect(question *models.Question, answer *models.QuizAnswer) EvaluationResult {
	selected, ok := decodeOptionIDs(answer.SelectedOptionIDs)
	if !ok {
		return autoGraded(false, question.Points)
	}
	correct := question.CorrectOptionIDs()
	if len(selected) != len(correct) {
		return autoGraded(false, question.Points)
	}
	set := make(map[uint]struct{}, len(correct))
	for _, id := range correct {
		set[id] = struct{}{}
	}
	for _, id := range selected {
		if _, found := set[id]; !found {
			return autoGraded(false, question.Points)
		}
		delete(set, id)
	}
	return autoGraded(len(set) == 0, question.Points)
}

// evaluateText trims the submission, never the stored key. The key keeps its
// exact stored form so deliberate leading or trailing whitespace in the key
// stays significant.
func evaluateText(question *models.Question, answer *models.QuizAnswer) EvaluationResult {
	if question.CorrectAnswer == nil || strings.TrimSpace(*question.CorrectAnswer) == "" {
		return pendingManual()
	}
	if answer.AnswerText == nil {
		return autoGraded(false, question.Points)
	}
	submitted := strings.TrimSpace(*answer.AnswerText)
	key := *question.CorrectAnswer
	if question.CaseSensitive {
		return autoGraded(submitted == key, question.Points)
	}
	return autoGraded(strings.EqualFold(submitted, key), question.Points)
}

// evaluateNumeric compares parsed decimal values with no tolerance, so
// "5.0" matches "5" but nothing else does.
func evaluateNumeric(question *models.Question, answer *models.QuizAnswer) EvaluationResult {
	if question.CorrectAnswer == nil {
		return pendingManual()
	}
	key, err := decimal.NewFromString(strings.TrimSpace(*question.CorrectAnswer))
	if err != nil {
		return pendingManual()
	}
	if answer.AnswerText == nil {
		return autoGraded(false, question.Points)
	}
	submitted, err := decimal.NewFromString(strings.TrimSpace(*answer.AnswerText))
	if err != nil {
		return autoGraded(false, question.Points)
	}
	return autoGraded(submitted.Equal(key), question.Points)
}

// evaluateMatching expects a JSON object of option ID to matched target.
// Every option that carries a match target must be paired with exactly that
// target; extraneous pairs fail the answer.
func evaluateMatching(question *models.Question, answer *models.QuizAnswer) EvaluationResult {
	if len(answer.SelectedOptionIDs) == 0 {
		return autoGraded(false, question.Points)
	}
	var pairs map[string]string
	if err := json.Unmarshal(answer.SelectedOptionIDs, &pairs); err != nil {
		return autoGraded(false, question.Points)
	}

	expected := make(map[string]string)
	for _, opt := range question.Options {
		if opt.MatchTarget != nil {
			expected[strconv.FormatUint(uint64(opt.ID), 10)] = *opt.MatchTarget
		}
	}
	if len(pairs) != len(expected) {
		return autoGraded(false, question.Points)
	}
	for id, target := range pairs {
		if expected[id] != target {
			return autoGraded(false, question.Points)
		}
	}
	return autoGraded(true, question.Points)
}

// evaluateOrdering expects a JSON array of option IDs and compares it to the
// stored option order.
func evaluateOrdering(question *models.Question, answer *models.QuizAnswer) EvaluationResult {
	submitted, ok := decodeOptionIDs(answer.SelectedOptionIDs)
	if !ok {
		return autoGraded(false, question.Points)
	}
	expected := optionIDsInOrder(question)
	if len(submitted) != len(expected) {
		return autoGraded(false, question.Points)
	}
	for i := range expected {
		if submitted[i] != expected[i] {
			return autoGraded(false, question.Points)
		}
	}
	return autoGraded(true, question.Points)
}

func decodeOptionIDs(raw []byte) ([]uint, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var ids []uint
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, false
	}
	return ids, true
}

// optionIDsInOrder returns option IDs sorted by their stored Order field
// without mutating the question.
func optionIDsInOrder(question *models.Question) []uint {
	opts := make([]models.QuestionOption, len(question.Options))
	copy(opts, question.Options)
	sort.SliceStable(opts, func(i, j int) bool { return opts[i].Order < opts[j].Order })
	ids := make([]uint, len(opts))
	for i, opt := range opts {
		ids[i] = opt.ID
	}
	return ids
}
