package study

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/coursebot/internal/db"
	"github.com/ziadkadry99/coursebot/internal/retrieval"
)

type fakePipeline struct {
	queries []retrieval.Query
	err     error
}

func (f *fakePipeline) ProcessQuery(_ context.Context, q retrieval.Query) (retrieval.Answer, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return retrieval.Answer{}, f.err
	}
	return retrieval.Answer{Text: "answer to " + q.Text}, nil
}

func setupManager(t *testing.T, cfg Config) (*Manager, *fakePipeline) {
	t.Helper()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	p := &fakePipeline{}
	m := NewManager(NewStore(database), p, cfg, nil)
	clock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return m, p
}

func TestStart(t *testing.T) {
	m, _ := setupManager(t, Config{Tasks: []string{"t1", "t2", "t3"}, Seed: 7})
	ctx := context.Background()

	sess, err := m.Start(ctx)
	require.NoError(t, err)
	assert.Len(t, sess.ID, 8)
	assert.Equal(t, PhasePreSurvey, sess.Phase)
	require.Len(t, sess.Methods, 3)
	for _, mode := range sess.Methods {
		assert.Contains(t, []retrieval.Mode{retrieval.ModeSemantic, retrieval.ModeLexical}, mode)
	}

	loaded, err := m.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.Methods, loaded.Methods)
	assert.Equal(t, PhasePreSurvey, loaded.Phase)
}

func TestStart_ModesAreMixed(t *testing.T) {
	m, _ := setupManager(t, Config{Tasks: make([]string, 64), Seed: 42})

	sess, err := m.Start(context.Background())
	require.NoError(t, err)
	seen := map[retrieval.Mode]bool{}
	for _, mode := range sess.Methods {
		seen[mode] = true
	}
	assert.Len(t, seen, 2)
}

func TestGet_Unknown(t *testing.T) {
	m, _ := setupManager(t, Config{})
	_, err := m.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFullStudyFlow(t *testing.T) {
	m, p := setupManager(t, Config{Tasks: []string{"first", "second"}, Seed: 1, K: 3, Expand: true})
	ctx := context.Background()

	sess, err := m.Start(ctx)
	require.NoError(t, err)
	id := sess.ID

	_, err = m.Ask(ctx, id, Question{Text: "too early"})
	assert.ErrorIs(t, err, ErrWrongPhase)

	sess, err = m.Submit(ctx, id, map[string]any{"usage": 3})
	require.NoError(t, err)
	assert.Equal(t, PhaseTask, sess.Phase)
	assert.Equal(t, "first", m.TaskDescription(sess))

	_, err = m.Advance(ctx, id)
	assert.ErrorIs(t, err, ErrNoQuestions)

	filter := retrieval.Filter{retrieval.FacetCourse: retrieval.OneOf("A", "B")}
	ans, err := m.Ask(ctx, id, Question{Text: "q1", Filter: filter})
	require.NoError(t, err)
	assert.Equal(t, "answer to q1", ans.Text)

	require.Len(t, p.queries, 1)
	assert.Equal(t, sess.Methods[0], p.queries[0].Mode)
	assert.Equal(t, 3, p.queries[0].K)
	assert.Equal(t, sess.Methods[0] == retrieval.ModeSemantic, p.queries[0].Expand)

	sess, err = m.Advance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, PhaseTaskFeedback, sess.Phase)

	_, err = m.Ask(ctx, id, Question{Text: "during feedback"})
	assert.ErrorIs(t, err, ErrWrongPhase)

	sess, err = m.Submit(ctx, id, map[string]any{"helpful": 4})
	require.NoError(t, err)
	assert.Equal(t, PhaseTask, sess.Phase)
	assert.Equal(t, 1, sess.CurrentTask)

	_, err = m.Ask(ctx, id, Question{Text: "q2"})
	require.NoError(t, err)
	_, err = m.Advance(ctx, id)
	require.NoError(t, err)
	sess, err = m.Submit(ctx, id, map[string]any{"helpful": 2})
	require.NoError(t, err)
	assert.Equal(t, PhaseFree, sess.Phase)
	assert.Equal(t, FreeTaskID, sess.TaskID())

	_, err = m.Ask(ctx, id, Question{Text: "free q"})
	require.NoError(t, err)
	assert.Equal(t, retrieval.ModeSemantic, p.queries[len(p.queries)-1].Mode)

	sess, err = m.Advance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, PhasePostSurvey, sess.Phase)

	sess, err = m.Submit(ctx, id, map[string]any{"would_use": "Yes"})
	require.NoError(t, err)
	assert.Equal(t, PhaseComplete, sess.Phase)
	assert.Regexp(t, regexp.MustCompile(`^[0-9A-F]{6}$`), sess.ParticipationCode)

	_, err = m.Submit(ctx, id, nil)
	assert.ErrorIs(t, err, ErrWrongPhase)

	logs, err := m.Logs(ctx, id)
	require.NoError(t, err)
	var types []LogType
	for _, e := range logs {
		types = append(types, e.Type)
		assert.Equal(t, id, e.StudyID)
		assert.False(t, e.Timestamp.IsZero())
	}
	assert.Equal(t, []LogType{LogPreSurvey, LogTaskInteraction, LogTaskInteraction, LogFreeExploration, LogPostSurvey}, types)

	first := logs[1]
	assert.Equal(t, "0", first.TaskID)
	assert.Equal(t, sess.Methods[0], first.Method)
	require.Len(t, first.Exchanges, 1)
	assert.Equal(t, "q1", first.Exchanges[0].Query)
	assert.Equal(t, "answer to q1", first.Exchanges[0].Response)
	assert.Equal(t, map[string][]string{"course": {"A", "B"}}, first.Exchanges[0].Filters)
	assert.EqualValues(t, 4, first.Feedback["helpful"])

	assert.Equal(t, FreeTaskID, logs[3].TaskID)
	assert.Equal(t, "free q", logs[3].Exchanges[0].Query)
	assert.Equal(t, "Yes", logs[4].Responses["would_use"])
}

func TestAsk_FailureRecorded(t *testing.T) {
	m, p := setupManager(t, Config{Tasks: []string{"only"}})
	ctx := context.Background()

	sess, err := m.Start(ctx)
	require.NoError(t, err)
	_, err = m.Submit(ctx, sess.ID, nil)
	require.NoError(t, err)

	p.err = retrieval.ErrRetrievalDegraded
	_, err = m.Ask(ctx, sess.ID, Question{Text: "q"})
	assert.ErrorIs(t, err, retrieval.ErrRetrievalDegraded)

	sess, err = m.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, sess.Chat["0"], 1)
	assert.Contains(t, sess.Chat["0"][0].Response, "Search failed")
	assert.Empty(t, sess.Chat["0"][0].Filters)
}

func TestExport(t *testing.T) {
	m, _ := setupManager(t, Config{Tasks: []string{"only"}})
	ctx := context.Background()

	sess, err := m.Start(ctx)
	require.NoError(t, err)

	var empty bytes.Buffer
	require.NoError(t, m.Export(ctx, sess.ID, &empty))
	assert.JSONEq(t, `[]`, empty.String())

	_, err = m.Submit(ctx, sess.ID, map[string]any{"q": "a"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, m.Export(ctx, sess.ID, &buf))

	var out []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "pre_survey", out[0]["type"])
	assert.Equal(t, sess.ID, out[0]["study_id"])
	assert.NotEmpty(t, out[0]["timestamp"])

	err = m.Export(ctx, "nope", &buf)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSubmit_FailedSaveLeavesNoLogEntry(t *testing.T) {
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	m := NewManager(NewStore(database), &fakePipeline{}, Config{Tasks: []string{"t1"}, Seed: 1}, nil)
	ctx := context.Background()

	sess, err := m.Start(ctx)
	require.NoError(t, err)

	_, err = database.Exec(`CREATE TRIGGER reject_update BEFORE UPDATE ON study_sessions
		BEGIN SELECT RAISE(ABORT, 'session update rejected'); END`)
	require.NoError(t, err)

	_, err = m.Submit(ctx, sess.ID, map[string]any{"age": 30})
	require.Error(t, err)

	logs, err := m.Logs(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, logs)
	loaded, err := m.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, PhasePreSurvey, loaded.Phase)

	_, err = database.Exec(`DROP TRIGGER reject_update`)
	require.NoError(t, err)

	advanced, err := m.Submit(ctx, sess.ID, map[string]any{"age": 30})
	require.NoError(t, err)
	assert.Equal(t, PhaseTask, advanced.Phase)

	logs, err = m.Logs(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, LogPreSurvey, logs[0].Type)
}

func TestParticipationCodes(t *testing.T) {
	database, err := db.OpenMemory()
	require.NoError(t, err)
	defer database.Close()
	store := NewStore(database)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.SaveSession(ctx, &Session{ID: "a", Phase: PhaseComplete, ParticipationCode: "ABC123", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, store.SaveSession(ctx, &Session{ID: "b", Phase: PhaseTask, CreatedAt: now, UpdatedAt: now}))

	codes, err := store.ParticipationCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC123"}, codes)
}

func TestSessionMode(t *testing.T) {
	s := &Session{Phase: PhaseTask, Methods: []retrieval.Mode{retrieval.ModeLexical, retrieval.ModeSemantic}}
	assert.Equal(t, retrieval.ModeLexical, s.Mode())
	assert.Equal(t, "0", s.TaskID())
	assert.False(t, s.IsLastTask())

	s.CurrentTask = 1
	assert.True(t, s.IsLastTask())

	s.Phase = PhaseFree
	assert.Equal(t, retrieval.ModeSemantic, s.Mode())
	assert.Equal(t, FreeTaskID, s.TaskID())
}
