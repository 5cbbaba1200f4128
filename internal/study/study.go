// Package study runs the participant study: a pre-survey, a sequence of
// tasks each answered with a randomly assigned retrieval mode, per-task
// feedback, free exploration in semantic mode and a final survey that ends
// with a participation code.
package study

import (
	"errors"
	"strconv"
	"time"

	"github.com/ziadkadry99/coursebot/internal/retrieval"
)

// Phase is a step of the study.
type Phase string

const (
	PhasePreSurvey    Phase = "pre_survey"
	PhaseTask         Phase = "task"
	PhaseTaskFeedback Phase = "task_feedback"
	PhaseFree         Phase = "free"
	PhasePostSurvey   Phase = "post_survey"
	PhaseComplete     Phase = "complete"
)

// FreeTaskID keys the free exploration chat history.
const FreeTaskID = "free"

// LogType classifies a study log entry.
type LogType string

const (
	LogPreSurvey       LogType = "pre_survey"
	LogTaskInteraction LogType = "task_interaction"
	LogFreeExploration LogType = "free_exploration"
	LogPostSurvey      LogType = "post_survey"
)

var (
	// ErrNotFound is returned for an unknown study id.
	ErrNotFound = errors.New("study session not found")
	// ErrWrongPhase is returned when an action does not fit the current phase.
	ErrWrongPhase = errors.New("action not allowed in the current phase")
	// ErrNoQuestions is returned when a participant tries to move on without
	// having asked anything.
	ErrNoQuestions = errors.New("ask at least one question before continuing")
)

// DefaultTasks are the study tasks used when none are configured.
var DefaultTasks = []string{
	"Task 1: Explain the key differences between three fundamental approaches by which a learning computer program can enhance its performance based on data or experience.",
	"Task 2: Describe how the retention of new information can be negatively impacted when similar content is already stored in memory. Explain the underlying mechanisms and provide an example that illustrates this effect.",
	"Task 3: Name the five formal parameters by which a Finite-State Automaton (FSA) can be precisely defined in formal language theory.",
	"Task 4: Which structure in the outer envelope of a nerve cell prevents hydrophile substances from easily entering or leaving the cell interior?",
	"Task 5: Explain how information can be represented in the brain by neurons. Describe at least three different mechanisms of neural information coding and briefly summarize how these mechanisms contribute to information processing and storage.",
}

// Exchange is one question and the answer shown for it.
type Exchange struct {
	Query    string `json:"query"`
	Response string `json:"response"`
	// Filters holds the facet selection with OneOf sets flattened to lists.
	Filters   map[string][]string `json:"filters"`
	Mode      retrieval.Mode      `json:"mode"`
	Timestamp time.Time           `json:"timestamp"`
}

// Session is the persisted state of one participant.
type Session struct {
	ID          string           `json:"study_id"`
	Phase       Phase            `json:"phase"`
	CurrentTask int              `json:"current_task"`
	Methods     []retrieval.Mode `json:"methods"`
	// Chat maps a task id ("0", "1", ... or "free") to its exchanges.
	Chat              map[string][]Exchange `json:"chat"`
	ParticipationCode string                `json:"participation_code,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// TaskID returns the chat key of the active task.
func (s *Session) TaskID() string {
	if s.Phase == PhaseFree {
		return FreeTaskID
	}
	return strconv.Itoa(s.CurrentTask)
}

// Mode returns the retrieval mode for the active task. Free exploration
// always uses semantic retrieval.
func (s *Session) Mode() retrieval.Mode {
	if s.Phase == PhaseFree || s.CurrentTask >= len(s.Methods) {
		return retrieval.ModeSemantic
	}
	return s.Methods[s.CurrentTask]
}

// IsLastTask reports whether the active task is the final one.
func (s *Session) IsLastTask() bool {
	return s.CurrentTask >= len(s.Methods)-1
}

// LogEntry is one timestamped record of the study log.
type LogEntry struct {
	ID        string         `json:"-"`
	StudyID   string         `json:"study_id"`
	Type      LogType        `json:"type"`
	TaskID    string         `json:"task_id,omitempty"`
	Method    retrieval.Mode `json:"method,omitempty"`
	Exchanges []Exchange     `json:"queries_and_responses,omitempty"`
	// Responses holds questionnaire answers keyed by question.
	Responses map[string]any `json:"responses,omitempty"`
	Feedback  map[string]any `json:"feedback,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
