package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/edplatform/grading-service/internal/models"
	"github.com/edplatform/grading-service/internal/repositories"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// mockRepository is an in-memory Repository for service tests. Sub-repository
// accessors share the same backing maps, and WithTransaction simply runs the
// callback against the same store.
type mockRepository struct {
	mu     sync.Mutex
	nextID uint

	quizzes     map[uint]*models.Quiz
	questions   map[uint]*models.Question
	attempts    map[uint]*models.QuizAttempt
	answers     map[uint]*models.QuizAnswer
	assignments map[uint]*models.Assignment
	submissions map[uint]*models.AssignmentSubmission
	enrollments map[uint]*models.Enrollment
	courses     map[uint]*models.Course
	reviews     map[uint]*models.CourseReview
	users       map[string]*models.User
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		quizzes:     make(map[uint]*models.Quiz),
		questions:   make(map[uint]*models.Question),
		attempts:    make(map[uint]*models.QuizAttempt),
		answers:     make(map[uint]*models.QuizAnswer),
		assignments: make(map[uint]*models.Assignment),
		submissions: make(map[uint]*models.AssignmentSubmission),
		enrollments: make(map[uint]*models.Enrollment),
		courses:     make(map[uint]*models.Course),
		reviews:     make(map[uint]*models.CourseReview),
		users:       make(map[string]*models.User),
	}
}

func (m *mockRepository) allocateID() uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return m.nextID
}

// addQuiz stores a quiz and its questions, assigning IDs where missing.
func (m *mockRepository) addQuiz(quiz *models.Quiz) *models.Quiz {
	if quiz.ID == 0 {
		quiz.ID = m.allocateID()
	}
	for i := range quiz.Questions {
		question := &quiz.Questions[i]
		if question.ID == 0 {
			question.ID = m.allocateID()
		}
		question.QuizID = quiz.ID
		m.questions[question.ID] = question
	}
	m.quizzes[quiz.ID] = quiz
	return quiz
}

func (m *mockRepository) addUser(id string, role models.UserRole) *models.User {
	user := &models.User{ID: id, FullName: id, Email: id + "@example.com", Role: role}
	m.users[id] = user
	return user
}

func (m *mockRepository) Quiz() repositories.QuizRepository             { return &mockQuizRepo{m} }
func (m *mockRepository) Question() repositories.QuestionRepository    { return &mockQuestionRepo{m} }
func (m *mockRepository) Attempt() repositories.AttemptRepository      { return &mockAttemptRepo{m} }
func (m *mockRepository) Answer() repositories.AnswerRepository        { return &mockAnswerRepo{m} }
func (m *mockRepository) Assignment() repositories.AssignmentRepository {
	return &mockAssignmentRepo{m}
}
func (m *mockRepository) Submission() repositories.SubmissionRepository {
	return &mockSubmissionRepo{m}
}
func (m *mockRepository) Enrollment() repositories.EnrollmentRepository {
	return &mockEnrollmentRepo{m}
}
func (m *mockRepository) Course() repositories.CourseRepository { return &mockCourseRepo{m} }
func (m *mockRepository) Review() repositories.ReviewRepository { return &mockReviewRepo{m} }
func (m *mockRepository) User() repositories.UserRepository     { return &mockUserRepo{m} }

func (m *mockRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(m)
}

func (m *mockRepository) Ping(ctx context.Context) error { return nil }
func (m *mockRepository) Close() error                   { return nil }

// ===== QUIZ =====

type mockQuizRepo struct{ store *mockRepository }

func (r *mockQuizRepo) Create(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error {
	r.store.addQuiz(quiz)
	return nil
}

func (r *mockQuizRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	quiz, ok := r.store.quizzes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return quiz, nil
}

func (r *mockQuizRepo) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *mockQuizRepo) Update(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error {
	r.store.quizzes[quiz.ID] = quiz
	return nil
}

func (r *mockQuizRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	delete(r.store.quizzes, id)
	return nil
}

func (r *mockQuizRepo) GetByCourse(ctx context.Context, tx *gorm.DB, courseID uint) ([]*models.Quiz, error) {
	var out []*models.Quiz
	for _, quiz := range r.store.quizzes {
		if quiz.CourseID == courseID {
			out = append(out, quiz)
		}
	}
	sortByID(out, func(q *models.Quiz) uint { return q.ID })
	return out, nil
}

func (r *mockQuizRepo) Exists(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	_, ok := r.store.quizzes[id]
	return ok, nil
}

// ===== QUESTION =====

type mockQuestionRepo struct{ store *mockRepository }

func (r *mockQuestionRepo) Create(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	if question.ID == 0 {
		question.ID = r.store.allocateID()
	}
	r.store.questions[question.ID] = question
	return nil
}

func (r *mockQuestionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	question, ok := r.store.questions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return question, nil
}

func (r *mockQuestionRepo) Update(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	r.store.questions[question.ID] = question
	return nil
}

func (r *mockQuestionRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	delete(r.store.questions, id)
	return nil
}

func (r *mockQuestionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error) {
	var out []*models.Question
	for _, id := range ids {
		if question, ok := r.store.questions[id]; ok {
			out = append(out, question)
		}
	}
	return out, nil
}

func (r *mockQuestionRepo) GetByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) ([]*models.Question, error) {
	var out []*models.Question
	for _, question := range r.store.questions {
		if question.QuizID == quizID {
			out = append(out, question)
		}
	}
	sortByID(out, func(q *models.Question) uint { return q.ID })
	return out, nil
}

func (r *mockQuestionRepo) CountByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) (int, error) {
	questions, _ := r.GetByQuiz(ctx, tx, quizID)
	return len(questions), nil
}

func (r *mockQuestionRepo) SumPointsByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) (int, error) {
	questions, _ := r.GetByQuiz(ctx, tx, quizID)
	total := 0
	for _, question := range questions {
		total += question.Points
	}
	return total, nil
}

// ===== ATTEMPT =====

type mockAttemptRepo struct{ store *mockRepository }

func (r *mockAttemptRepo) Create(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	if attempt.ID == 0 {
		attempt.ID = r.store.allocateID()
	}
	attempt.CreatedAt = time.Now()
	r.store.attempts[attempt.ID] = attempt
	return nil
}

func (r *mockAttemptRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	attempt, ok := r.store.attempts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return attempt, nil
}

func (r *mockAttemptRepo) GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	attempt, err := r.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	answers, _ := (&mockAnswerRepo{r.store}).GetByAttempt(ctx, tx, id)
	attempt.Answers = attempt.Answers[:0]
	for _, answer := range answers {
		attempt.Answers = append(attempt.Answers, *answer)
	}
	return attempt, nil
}

func (r *mockAttemptRepo) Update(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	if _, ok := r.store.attempts[attempt.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	attempt.UpdatedAt = time.Now()
	r.store.attempts[attempt.ID] = attempt
	return nil
}

func (r *mockAttemptRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	delete(r.store.attempts, id)
	return nil
}

func (r *mockAttemptRepo) matching(filters repositories.AttemptFilters) []*models.QuizAttempt {
	var out []*models.QuizAttempt
	for _, attempt := range r.store.attempts {
		if filters.Status != nil && attempt.Status != *filters.Status {
			continue
		}
		if filters.StudentID != nil && attempt.StudentID != *filters.StudentID {
			continue
		}
		if filters.QuizID != nil && attempt.QuizID != *filters.QuizID {
			continue
		}
		out = append(out, attempt)
	}
	sortByID(out, func(a *models.QuizAttempt) uint { return a.ID })
	return out
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (r *mockAttemptRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	matched := r.matching(filters)
	return paginate(matched, filters.Limit, filters.Offset), int64(len(matched)), nil
}

func (r *mockAttemptRepo) GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	filters.StudentID = &studentID
	return r.List(ctx, tx, filters)
}

func (r *mockAttemptRepo) GetByQuiz(ctx context.Context, tx *gorm.DB, quizID uint, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	filters.QuizID = &quizID
	return r.List(ctx, tx, filters)
}

func (r *mockAttemptRepo) GetByStudentAndQuiz(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) ([]*models.QuizAttempt, error) {
	attempts, _, err := r.List(ctx, tx, repositories.AttemptFilters{StudentID: &studentID, QuizID: &quizID})
	return attempts, err
}

func (r *mockAttemptRepo) GetActiveAttempt(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) (*models.QuizAttempt, error) {
	for _, attempt := range r.store.attempts {
		if attempt.StudentID == studentID && attempt.QuizID == quizID && attempt.IsInProgress() {
			return attempt, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockAttemptRepo) HasActiveAttempt(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) (bool, error) {
	_, err := r.GetActiveAttempt(ctx, tx, studentID, quizID)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (r *mockAttemptRepo) GetExpiredAttempts(ctx context.Context, tx *gorm.DB, now time.Time) ([]*models.QuizAttempt, error) {
	var out []*models.QuizAttempt
	for _, attempt := range r.store.attempts {
		if !attempt.IsInProgress() {
			continue
		}
		quiz, ok := r.store.quizzes[attempt.QuizID]
		if !ok {
			continue
		}
		if attempt.IsTimeExceededAt(quiz, now) {
			out = append(out, attempt)
		}
	}
	sortByID(out, func(a *models.QuizAttempt) uint { return a.ID })
	return out, nil
}

func (r *mockAttemptRepo) GetAttemptCount(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) (int, error) {
	count := 0
	for _, attempt := range r.store.attempts {
		if attempt.StudentID == studentID && attempt.QuizID == quizID {
			count++
		}
	}
	return count, nil
}

func (r *mockAttemptRepo) GetNextAttemptNumber(ctx context.Context, tx *gorm.DB, studentID string, quizID uint) (int, error) {
	highest := 0
	for _, attempt := range r.store.attempts {
		if attempt.StudentID == studentID && attempt.QuizID == quizID && attempt.AttemptNumber > highest {
			highest = attempt.AttemptNumber
		}
	}
	return highest + 1, nil
}

func (r *mockAttemptRepo) GetQuizAttemptStats(ctx context.Context, tx *gorm.DB, quizID uint) (*repositories.AttemptStats, error) {
	stats := &repositories.AttemptStats{StatusBreakdown: make(map[models.AttemptStatus]int)}
	passed := 0
	finished := 0
	for _, attempt := range r.store.attempts {
		if attempt.QuizID != quizID {
			continue
		}
		stats.TotalAttempts++
		stats.StatusBreakdown[attempt.Status]++
		if attempt.IsTerminal() {
			finished++
		}
		if attempt.Passed {
			passed++
		}
	}
	if stats.TotalAttempts > 0 {
		stats.PassRate = float64(passed) / float64(stats.TotalAttempts)
		stats.CompletionRate = float64(finished) / float64(stats.TotalAttempts)
	}
	return stats, nil
}

// ===== ANSWER =====

type mockAnswerRepo struct{ store *mockRepository }

func (r *mockAnswerRepo) Create(ctx context.Context, tx *gorm.DB, answer *models.QuizAnswer) error {
	if answer.ID == 0 {
		answer.ID = r.store.allocateID()
	}
	answer.CreatedAt = time.Now()
	r.store.answers[answer.ID] = answer
	return nil
}

func (r *mockAnswerRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAnswer, error) {
	answer, ok := r.store.answers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return answer, nil
}

func (r *mockAnswerRepo) GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAnswer, error) {
	answer, err := r.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if question, ok := r.store.questions[answer.QuestionID]; ok {
		answer.Question = *question
	}
	return answer, nil
}

func (r *mockAnswerRepo) Update(ctx context.Context, tx *gorm.DB, answer *models.QuizAnswer) error {
	if _, ok := r.store.answers[answer.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	answer.UpdatedAt = time.Now()
	r.store.answers[answer.ID] = answer
	return nil
}

func (r *mockAnswerRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	delete(r.store.answers, id)
	return nil
}

func (r *mockAnswerRepo) UpsertAnswer(ctx context.Context, tx *gorm.DB, answer *models.QuizAnswer) error {
	existing, err := r.GetByAttemptAndQuestion(ctx, tx, answer.AttemptID, answer.QuestionID)
	if err == nil {
		answer.ID = existing.ID
		return r.Update(ctx, tx, answer)
	}
	return r.Create(ctx, tx, answer)
}

func (r *mockAnswerRepo) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.QuizAnswer, error) {
	var out []*models.QuizAnswer
	for _, answer := range r.store.answers {
		if answer.AttemptID == attemptID {
			out = append(out, answer)
		}
	}
	sortByID(out, func(a *models.QuizAnswer) uint { return a.ID })
	return out, nil
}

func (r *mockAnswerRepo) GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.QuizAnswer, error) {
	for _, answer := range r.store.answers {
		if answer.AttemptID == attemptID && answer.QuestionID == questionID {
			return answer, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockAnswerRepo) UpdateGrade(ctx context.Context, tx *gorm.DB, id uint, points decimal.Decimal, isCorrect *bool, feedback *string, graderID *string) error {
	answer, ok := r.store.answers[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	answer.PointsEarned = &points
	answer.IsCorrect = isCorrect
	answer.InstructorFeedback = feedback
	answer.GradedBy = graderID
	answer.GradedAt = &now
	answer.AutoGraded = false
	return nil
}

func (r *mockAnswerRepo) GetPendingManual(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.QuizAnswer, error) {
	answers, _ := r.GetByAttempt(ctx, tx, attemptID)
	var out []*models.QuizAnswer
	for _, answer := range answers {
		if answer.RequiresManualGrading() {
			out = append(out, answer)
		}
	}
	return out, nil
}

func (r *mockAnswerRepo) HasPendingManual(ctx context.Context, tx *gorm.DB, attemptID uint) (bool, error) {
	pending, err := r.GetPendingManual(ctx, tx, attemptID)
	if err != nil {
		return false, err
	}
	return len(pending) > 0, nil
}

func (r *mockAnswerRepo) GetGradingStats(ctx context.Context, tx *gorm.DB, quizID uint) (*repositories.GradingStats, error) {
	stats := &repositories.GradingStats{}
	for _, answer := range r.store.answers {
		attempt, ok := r.store.attempts[answer.AttemptID]
		if !ok || attempt.QuizID != quizID {
			continue
		}
		stats.TotalAnswers++
		if answer.IsGradedAnswer() {
			stats.GradedAnswers++
			if answer.AutoGraded {
				stats.AutoGraded++
			} else {
				stats.ManualGraded++
			}
		} else {
			stats.PendingAnswers++
		}
	}
	return stats, nil
}

// ===== ASSIGNMENT =====

type mockAssignmentRepo struct{ store *mockRepository }

func (r *mockAssignmentRepo) Create(ctx context.Context, tx *gorm.DB, assignment *models.Assignment) error {
	if assignment.ID == 0 {
		assignment.ID = r.store.allocateID()
	}
	r.store.assignments[assignment.ID] = assignment
	return nil
}

func (r *mockAssignmentRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Assignment, error) {
	assignment, ok := r.store.assignments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return assignment, nil
}

func (r *mockAssignmentRepo) Update(ctx context.Context, tx *gorm.DB, assignment *models.Assignment) error {
	r.store.assignments[assignment.ID] = assignment
	return nil
}

func (r *mockAssignmentRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	delete(r.store.assignments, id)
	return nil
}

func (r *mockAssignmentRepo) GetByCourse(ctx context.Context, tx *gorm.DB, courseID uint) ([]*models.Assignment, error) {
	var out []*models.Assignment
	for _, assignment := range r.store.assignments {
		if assignment.CourseID == courseID {
			out = append(out, assignment)
		}
	}
	sortByID(out, func(a *models.Assignment) uint { return a.ID })
	return out, nil
}

func (r *mockAssignmentRepo) Exists(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	_, ok := r.store.assignments[id]
	return ok, nil
}

// ===== SUBMISSION =====

type mockSubmissionRepo struct{ store *mockRepository }

func (r *mockSubmissionRepo) Create(ctx context.Context, tx *gorm.DB, submission *models.AssignmentSubmission) error {
	if submission.ID == 0 {
		submission.ID = r.store.allocateID()
	}
	submission.CreatedAt = time.Now()
	r.store.submissions[submission.ID] = submission
	return nil
}

func (r *mockSubmissionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.AssignmentSubmission, error) {
	submission, ok := r.store.submissions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return submission, nil
}

func (r *mockSubmissionRepo) GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.AssignmentSubmission, error) {
	submission, err := r.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if assignment, ok := r.store.assignments[submission.AssignmentID]; ok {
		submission.Assignment = *assignment
	}
	return submission, nil
}

func (r *mockSubmissionRepo) Update(ctx context.Context, tx *gorm.DB, submission *models.AssignmentSubmission) error {
	if _, ok := r.store.submissions[submission.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	submission.UpdatedAt = time.Now()
	r.store.submissions[submission.ID] = submission
	return nil
}

func (r *mockSubmissionRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	delete(r.store.submissions, id)
	return nil
}

func (r *mockSubmissionRepo) matching(filters repositories.SubmissionFilters) []*models.AssignmentSubmission {
	var out []*models.AssignmentSubmission
	for _, submission := range r.store.submissions {
		if filters.Status != nil && submission.Status != *filters.Status {
			continue
		}
		if filters.StudentID != nil && submission.StudentID != *filters.StudentID {
			continue
		}
		if filters.AssignmentID != nil && submission.AssignmentID != *filters.AssignmentID {
			continue
		}
		if filters.IsLate != nil && submission.IsLate != *filters.IsLate {
			continue
		}
		if filters.NeedsGrading != nil && submission.NeedsGrading != *filters.NeedsGrading {
			continue
		}
		out = append(out, submission)
	}
	sortByID(out, func(s *models.AssignmentSubmission) uint { return s.ID })
	return out
}

func (r *mockSubmissionRepo) GetByAssignment(ctx context.Context, tx *gorm.DB, assignmentID uint, filters repositories.SubmissionFilters) ([]*models.AssignmentSubmission, int64, error) {
	filters.AssignmentID = &assignmentID
	matched := r.matching(filters)
	return paginate(matched, filters.Limit, filters.Offset), int64(len(matched)), nil
}

func (r *mockSubmissionRepo) GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters repositories.SubmissionFilters) ([]*models.AssignmentSubmission, int64, error) {
	filters.StudentID = &studentID
	matched := r.matching(filters)
	return paginate(matched, filters.Limit, filters.Offset), int64(len(matched)), nil
}

func (r *mockSubmissionRepo) GetByAssignmentAndStudent(ctx context.Context, tx *gorm.DB, assignmentID uint, studentID string) ([]*models.AssignmentSubmission, error) {
	matched := r.matching(repositories.SubmissionFilters{AssignmentID: &assignmentID, StudentID: &studentID})
	return matched, nil
}

func (r *mockSubmissionRepo) CountByAssignmentAndStudent(ctx context.Context, tx *gorm.DB, assignmentID uint, studentID string) (int, error) {
	matched := r.matching(repositories.SubmissionFilters{AssignmentID: &assignmentID, StudentID: &studentID})
	return len(matched), nil
}

func (r *mockSubmissionRepo) GetNeedingGrading(ctx context.Context, tx *gorm.DB, assignmentID uint) ([]*models.AssignmentSubmission, error) {
	needsGrading := true
	matched := r.matching(repositories.SubmissionFilters{AssignmentID: &assignmentID, NeedsGrading: &needsGrading})
	return matched, nil
}

func (r *mockSubmissionRepo) GetAssignmentSubmissionStats(ctx context.Context, tx *gorm.DB, assignmentID uint) (*repositories.SubmissionStats, error) {
	stats := &repositories.SubmissionStats{}
	gradeSum := 0.0
	for _, submission := range r.store.submissions {
		if submission.AssignmentID != assignmentID {
			continue
		}
		stats.TotalSubmissions++
		if submission.IsLate {
			stats.LateSubmissions++
		}
		if submission.Grade != nil {
			stats.GradedSubmissions++
			grade, _ := submission.Grade.Float64()
			gradeSum += grade
		}
	}
	if stats.GradedSubmissions > 0 {
		stats.AverageGrade = gradeSum / float64(stats.GradedSubmissions)
	}
	return stats, nil
}

// ===== ENROLLMENT =====

type mockEnrollmentRepo struct{ store *mockRepository }

func (r *mockEnrollmentRepo) Create(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment) error {
	if enrollment.ID == 0 {
		enrollment.ID = r.store.allocateID()
	}
	r.store.enrollments[enrollment.ID] = enrollment
	return nil
}

func (r *mockEnrollmentRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Enrollment, error) {
	enrollment, ok := r.store.enrollments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return enrollment, nil
}

func (r *mockEnrollmentRepo) GetByIDWithCourse(ctx context.Context, tx *gorm.DB, id uint) (*models.Enrollment, error) {
	enrollment, err := r.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if course, ok := r.store.courses[enrollment.CourseID]; ok {
		enrollment.Course = *course
	}
	return enrollment, nil
}

func (r *mockEnrollmentRepo) Update(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment) error {
	if _, ok := r.store.enrollments[enrollment.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	r.store.enrollments[enrollment.ID] = enrollment
	return nil
}

func (r *mockEnrollmentRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	delete(r.store.enrollments, id)
	return nil
}

func (r *mockEnrollmentRepo) GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters repositories.EnrollmentFilters) ([]*models.Enrollment, int64, error) {
	var out []*models.Enrollment
	for _, enrollment := range r.store.enrollments {
		if enrollment.StudentID != studentID {
			continue
		}
		if filters.Status != nil && enrollment.Status != *filters.Status {
			continue
		}
		if filters.CourseID != nil && enrollment.CourseID != *filters.CourseID {
			continue
		}
		out = append(out, enrollment)
	}
	sortByID(out, func(e *models.Enrollment) uint { return e.ID })
	return paginate(out, filters.Limit, filters.Offset), int64(len(out)), nil
}

func (r *mockEnrollmentRepo) GetByCourseAndStudent(ctx context.Context, tx *gorm.DB, courseID uint, studentID string) (*models.Enrollment, error) {
	for _, enrollment := range r.store.enrollments {
		if enrollment.CourseID == courseID && enrollment.StudentID == studentID {
			return enrollment, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// ===== COURSE =====

type mockCourseRepo struct{ store *mockRepository }

func (r *mockCourseRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error) {
	course, ok := r.store.courses[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return course, nil
}

func (r *mockCourseRepo) Exists(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	_, ok := r.store.courses[id]
	return ok, nil
}

func (r *mockCourseRepo) UpdateRating(ctx context.Context, tx *gorm.DB, id uint, rating decimal.Decimal, totalRatings int) error {
	course, ok := r.store.courses[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	course.Rating = &rating
	course.TotalRatings = totalRatings
	return nil
}

// ===== REVIEW =====

type mockReviewRepo struct{ store *mockRepository }

func (r *mockReviewRepo) Create(ctx context.Context, tx *gorm.DB, review *models.CourseReview) error {
	if review.ID == 0 {
		review.ID = r.store.allocateID()
	}
	review.CreatedAt = time.Now()
	r.store.reviews[review.ID] = review
	return nil
}

func (r *mockReviewRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.CourseReview, error) {
	review, ok := r.store.reviews[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return review, nil
}

func (r *mockReviewRepo) GetByCourseAndStudent(ctx context.Context, tx *gorm.DB, courseID uint, studentID string) (*models.CourseReview, error) {
	for _, review := range r.store.reviews {
		if review.CourseID == courseID && review.StudentID == studentID {
			return review, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockReviewRepo) ExistsByCourseAndStudent(ctx context.Context, tx *gorm.DB, courseID uint, studentID string) (bool, error) {
	_, err := r.GetByCourseAndStudent(ctx, tx, courseID, studentID)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (r *mockReviewRepo) CountByCourse(ctx context.Context, tx *gorm.DB, courseID uint) (int64, error) {
	var count int64
	for _, review := range r.store.reviews {
		if review.CourseID == courseID {
			count++
		}
	}
	return count, nil
}

// ===== USER =====

type mockUserRepo struct{ store *mockRepository }

func (r *mockUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := r.store.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (r *mockUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range r.store.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockUserRepo) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	var out []*models.User
	for _, id := range ids {
		if user, ok := r.store.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

func (r *mockUserRepo) List(ctx context.Context, filters repositories.UserFilters) ([]*models.User, int64, error) {
	var out []*models.User
	for _, user := range r.store.users {
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, filters.Limit, filters.Offset), int64(len(out)), nil
}

func (r *mockUserRepo) ExistsByID(ctx context.Context, id string) (bool, error) {
	_, ok := r.store.users[id]
	return ok, nil
}

func (r *mockUserRepo) HasRole(ctx context.Context, id string, role models.UserRole) (bool, error) {
	user, ok := r.store.users[id]
	if !ok {
		return false, nil
	}
	return user.Role == role, nil
}

func sortByID[T any](items []T, id func(T) uint) {
	sort.Slice(items, func(i, j int) bool { return id(items[i]) < id(items[j]) })
}
