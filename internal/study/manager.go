package study

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	mrand "math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ziadkadry99/coursebot/internal/retrieval"
)

// Answerer is the part of the retrieval pipeline a study needs.
type Answerer interface {
	ProcessQuery(ctx context.Context, q retrieval.Query) (retrieval.Answer, error)
}

// Config controls how sessions are set up.
type Config struct {
	Tasks []string
	// Seed makes mode assignment reproducible. Zero picks a random seed.
	Seed int64
	// K is the number of passages retrieved per question.
	K int
	// Expand enables query expansion for semantic questions.
	Expand bool
}

// Question is a participant's query within a session.
type Question struct {
	Text   string
	Filter retrieval.Filter
}

// Manager drives sessions through the study phases. Session state changes
// are serialized; pipeline calls run outside the lock.
type Manager struct {
	store    *Store
	pipeline Answerer
	cfg      Config
	log      *zap.Logger
	now      func() time.Time

	mu  sync.Mutex
	rng *mrand.Rand
}

// NewManager creates a Manager.
func NewManager(store *Store, pipeline Answerer, cfg Config, log *zap.Logger) *Manager {
	if len(cfg.Tasks) == 0 {
		cfg.Tasks = DefaultTasks
	}
	if cfg.K <= 0 {
		cfg.K = 5
	}
	seed := uint64(cfg.Seed)
	if seed == 0 {
		seed = mrand.Uint64()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		store:    store,
		pipeline: pipeline,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		rng:      mrand.New(mrand.NewPCG(seed, seed>>1|1)),
	}
}

// Tasks returns the configured task descriptions.
func (m *Manager) Tasks() []string { return m.cfg.Tasks }

// TaskDescription returns the text shown for the session's active step.
func (m *Manager) TaskDescription(s *Session) string {
	switch s.Phase {
	case PhaseFree:
		return "Time to Explore! Ask anything you'd like related to the course material."
	case PhaseTask, PhaseTaskFeedback:
		if s.CurrentTask < len(m.cfg.Tasks) {
			return m.cfg.Tasks[s.CurrentTask]
		}
	}
	return ""
}

// Start creates a session with a random retrieval mode per task.
func (m *Manager) Start(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	methods := make([]retrieval.Mode, len(m.cfg.Tasks))
	for i := range methods {
		if m.rng.IntN(2) == 0 {
			methods[i] = retrieval.ModeSemantic
		} else {
			methods[i] = retrieval.ModeLexical
		}
	}

	now := m.now()
	sess := &Session{
		ID:        uuid.New().String()[:8],
		Phase:     PhasePreSurvey,
		Methods:   methods,
		Chat:      make(map[string][]Exchange),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	m.log.Info("study session started", zap.String("study_id", sess.ID), zap.Any("methods", methods))
	return sess, nil
}

// Get loads a session.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	return m.store.GetSession(ctx, id)
}

// Ask answers a question in the session's current task with the task's
// mode and records the exchange. A failed query is recorded with its error
// text and the error is returned.
func (m *Manager) Ask(ctx context.Context, id string, q Question) (retrieval.Answer, error) {
	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return retrieval.Answer{}, err
	}
	if sess.Phase != PhaseTask && sess.Phase != PhaseFree {
		return retrieval.Answer{}, fmt.Errorf("%w: cannot ask during %s", ErrWrongPhase, sess.Phase)
	}
	taskID, mode := sess.TaskID(), sess.Mode()

	ans, askErr := m.pipeline.ProcessQuery(ctx, retrieval.Query{
		Text:   q.Text,
		Mode:   mode,
		Filter: q.Filter,
		Expand: m.cfg.Expand && mode == retrieval.ModeSemantic,
		K:      m.cfg.K,
	})
	response := strings.TrimSpace(ans.Text)
	if askErr != nil {
		response = "Search failed: " + askErr.Error()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err = m.store.GetSession(ctx, id)
	if err != nil {
		return retrieval.Answer{}, err
	}
	if sess.TaskID() != taskID {
		return retrieval.Answer{}, fmt.Errorf("%w: task changed while answering", ErrWrongPhase)
	}
	sess.Chat[taskID] = append(sess.Chat[taskID], Exchange{
		Query:     q.Text,
		Response:  response,
		Filters:   q.Filter.Normalize().Flatten(),
		Mode:      mode,
		Timestamp: m.now(),
	})
	sess.UpdatedAt = m.now()
	if err := m.store.SaveSession(ctx, sess); err != nil {
		return retrieval.Answer{}, err
	}
	if askErr != nil {
		return retrieval.Answer{}, askErr
	}
	return ans, nil
}

// Advance moves on from a task or from free exploration. Both require at
// least one question. A task moves to its feedback step; free exploration
// is logged and moves to the final survey.
func (m *Manager) Advance(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Phase != PhaseTask && sess.Phase != PhaseFree {
		return nil, fmt.Errorf("%w: cannot advance from %s", ErrWrongPhase, sess.Phase)
	}
	if len(sess.Chat[sess.TaskID()]) == 0 {
		return nil, ErrNoQuestions
	}

	if sess.Phase == PhaseTask {
		sess.Phase = PhaseTaskFeedback
		if err := m.save(ctx, sess); err != nil {
			return nil, err
		}
		return sess, nil
	}

	entry := LogEntry{
		Type:      LogFreeExploration,
		TaskID:    FreeTaskID,
		Exchanges: sess.Chat[FreeTaskID],
	}
	sess.Phase = PhasePostSurvey
	if err := m.saveWithLog(ctx, sess, entry); err != nil {
		return nil, err
	}
	return sess, nil
}

// Submit records questionnaire responses for the current phase and moves
// on: the pre-survey opens the first task, task feedback opens the next task
// or free exploration, and the final survey completes the study with a
// participation code.
func (m *Manager) Submit(ctx context.Context, id string, responses map[string]any) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	var entry LogEntry
	switch sess.Phase {
	case PhasePreSurvey:
		entry = LogEntry{Type: LogPreSurvey, Responses: responses}
		sess.Phase, sess.CurrentTask = PhaseTask, 0

	case PhaseTaskFeedback:
		taskID := sess.TaskID()
		entry = LogEntry{
			Type:      LogTaskInteraction,
			TaskID:    taskID,
			Method:    sess.Mode(),
			Exchanges: sess.Chat[taskID],
			Feedback:  responses,
		}
		if sess.IsLastTask() {
			sess.Phase = PhaseFree
		} else {
			sess.Phase = PhaseTask
			sess.CurrentTask++
		}

	case PhasePostSurvey:
		entry = LogEntry{Type: LogPostSurvey, Responses: responses}
		code, err := participationCode()
		if err != nil {
			return nil, err
		}
		sess.Phase, sess.ParticipationCode = PhaseComplete, code

	default:
		return nil, fmt.Errorf("%w: no questionnaire during %s", ErrWrongPhase, sess.Phase)
	}
	if err := m.saveWithLog(ctx, sess, entry); err != nil {
		return nil, err
	}
	if sess.Phase == PhaseComplete {
		m.log.Info("study session completed", zap.String("study_id", sess.ID))
	}
	return sess, nil
}

// Logs returns the session's log entries.
func (m *Manager) Logs(ctx context.Context, id string) ([]LogEntry, error) {
	if _, err := m.store.GetSession(ctx, id); err != nil {
		return nil, err
	}
	return m.store.Logs(ctx, id)
}

// Export writes the session's log as an indented JSON array.
func (m *Manager) Export(ctx context.Context, id string, w io.Writer) error {
	entries, err := m.Logs(ctx, id)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []LogEntry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

// saveWithLog stamps e for sess and stores both atomically.
func (m *Manager) saveWithLog(ctx context.Context, sess *Session, e LogEntry) error {
	now := m.now()
	e.StudyID = sess.ID
	e.Timestamp = now
	sess.UpdatedAt = now
	return m.store.SaveWithLog(ctx, sess, e)
}

func (m *Manager) save(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = m.now()
	return m.store.SaveSession(ctx, sess)
}

// participationCode returns six uppercase hex digits.
func participationCode() (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating participation code: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}
