package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/coursebot/internal/retry"
)

type fakeSearcher struct {
	docs  []Document
	err   error
	calls []Request
}

func (f *fakeSearcher) Search(_ context.Context, req Request) ([]Document, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return Truncate(f.docs, req.Candidates), nil
}

type fakeSynth struct {
	answer Answer
	err    error
	calls  int
	got    []Document
}

func (f *fakeSynth) Generate(_ context.Context, _ string, docs []Document) (Answer, error) {
	f.calls++
	f.got = docs
	return f.answer, f.err
}

func makeDocs(n int) []Document {
	docs := make([]Document, n)
	for i := range docs {
		docs[i] = Document{
			Content:  fmt.Sprintf("passage %d", i),
			Metadata: NewMetadata("Machine Learning", "Lecture", "WiSe 2023", fmt.Sprint(i), ""),
		}
	}
	return docs
}

func newTestPipeline(t *testing.T, sem, lex Searcher, synth Synthesizer) *Pipeline {
	t.Helper()
	p, err := NewPipeline(sem, lex, synth)
	require.NoError(t, err)
	return p
}

func TestProcessQuery_InvalidMode(t *testing.T) {
	synth := &fakeSynth{}
	p := newTestPipeline(t, &fakeSearcher{}, &fakeSearcher{}, synth)

	_, err := p.ProcessQuery(context.Background(), Query{Text: "q", Mode: "fuzzy", K: 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidMode)

	var modeErr *InvalidModeError
	require.ErrorAs(t, err, &modeErr)
	assert.Equal(t, "fuzzy", modeErr.Mode)
	assert.Zero(t, synth.calls)
}

func TestProcessQuery_ZeroKFailsFast(t *testing.T) {
	sem := &fakeSearcher{docs: makeDocs(3)}
	p := newTestPipeline(t, sem, &fakeSearcher{}, &fakeSynth{})

	_, err := p.ProcessQuery(context.Background(), Query{Text: "q", Mode: ModeSemantic, K: 0})
	assert.ErrorIs(t, err, ErrInvalidK)
	assert.Empty(t, sem.calls)
}

func TestRetrieve_KAboveMaximumFailsFast(t *testing.T) {
	sem := &fakeSearcher{docs: makeDocs(3)}
	p := newTestPipeline(t, sem, &fakeSearcher{}, &fakeSynth{})

	_, err := p.Retrieve(context.Background(), Query{Text: "q", Mode: ModeSemantic, K: DefaultMaxK + 1})
	assert.ErrorIs(t, err, ErrInvalidK)

	_, err = p.Retrieve(context.Background(), Query{Text: "q", Mode: ModeSemantic, K: math.MaxInt})
	assert.ErrorIs(t, err, ErrInvalidK)
	assert.Empty(t, sem.calls)

	capped, err := NewPipeline(sem, &fakeSearcher{}, &fakeSynth{}, WithMaxK(2))
	require.NoError(t, err)
	_, err = capped.Retrieve(context.Background(), Query{Text: "q", Mode: ModeSemantic, K: 3})
	assert.ErrorIs(t, err, ErrInvalidK)

	docs, err := capped.Retrieve(context.Background(), Query{Text: "q", Mode: ModeSemantic, K: 2})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	require.Len(t, sem.calls, 1)
	assert.Equal(t, 2*OverFetchFactor, sem.calls[0].Candidates)
}

func TestProcessQuery_OverFetchAndTruncate(t *testing.T) {
	for _, k := range []int{1, 2, 5, 10} {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			lex := &fakeSearcher{docs: makeDocs(50)}
			synth := &fakeSynth{answer: Answer{Text: "ok"}}
			p := newTestPipeline(t, &fakeSearcher{}, lex, synth)

			docs, err := p.Retrieve(context.Background(), Query{Text: "q", Mode: ModeLexical, K: k})
			require.NoError(t, err)
			assert.LessOrEqual(t, len(docs), k)
			require.Len(t, lex.calls, 1)
			assert.Equal(t, k, lex.calls[0].Limit)
			assert.Equal(t, OverFetchFactor*k, lex.calls[0].Candidates)

			_, err = p.ProcessQuery(context.Background(), Query{Text: "q", Mode: ModeLexical, K: k})
			require.NoError(t, err)
			assert.LessOrEqual(t, len(synth.got), k)
		})
	}
}

func TestProcessQuery_EmptyResultSkipsSynthesizer(t *testing.T) {
	synth := &fakeSynth{answer: Answer{Text: "should not be used"}}
	p := newTestPipeline(t, &fakeSearcher{}, &fakeSearcher{}, synth)

	ans, err := p.ProcessQuery(context.Background(), Query{Text: "q", Mode: ModeSemantic, K: 5})
	require.NoError(t, err)
	assert.Equal(t, NoDocumentsAnswer, ans.Text)
	assert.True(t, ans.NoAnswer)
	assert.Zero(t, synth.calls)
}

func TestProcessQuery_ReturnsSynthesizerAnswerUnchanged(t *testing.T) {
	want := Answer{Text: "Backpropagation adjusts weights.", Citations: []Citation{{Course: "ML", Lecture: "DL", Page: "30-42"}}}
	synth := &fakeSynth{answer: want}
	sem := &fakeSearcher{docs: makeDocs(3)}
	p := newTestPipeline(t, sem, &fakeSearcher{}, synth)

	got, err := p.ProcessQuery(context.Background(), Query{Text: "q", Mode: ModeSemantic, K: 5, Expand: true})
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Len(t, synth.got, 3)
	assert.True(t, sem.calls[0].Expand)
}

func TestRetrieve_ExpansionOnlyForSemantic(t *testing.T) {
	lex := &fakeSearcher{docs: makeDocs(1)}
	p := newTestPipeline(t, &fakeSearcher{}, lex, &fakeSynth{})

	_, err := p.Retrieve(context.Background(), Query{Text: "q", Mode: ModeLexical, K: 1, Expand: true})
	require.NoError(t, err)
	assert.False(t, lex.calls[0].Expand)
}

func TestRetrieve_EmptyFilterBecomesNil(t *testing.T) {
	sem := &fakeSearcher{}
	p := newTestPipeline(t, sem, &fakeSearcher{}, &fakeSynth{})

	_, err := p.Retrieve(context.Background(), Query{
		Text:   "q",
		Mode:   ModeSemantic,
		K:      3,
		Filter: Filter{FacetCourse: OneOf(), FacetLecture: Scalar("")},
	})
	require.NoError(t, err)
	assert.Nil(t, sem.calls[0].Filter)
}

func TestProcessQuery_ExhaustedUpstreamIsDegraded(t *testing.T) {
	cause := fmt.Errorf("embed query: %w", fmt.Errorf("%w after 3 attempts: boom", retry.ErrExhausted))
	p := newTestPipeline(t, &fakeSearcher{err: cause}, &fakeSearcher{}, &fakeSynth{})

	_, err := p.ProcessQuery(context.Background(), Query{Text: "q", Mode: ModeSemantic, K: 2})
	assert.ErrorIs(t, err, ErrRetrievalDegraded)
	assert.ErrorIs(t, err, retry.ErrExhausted)
}

func TestProcessQuery_SynthesizerErrorPropagates(t *testing.T) {
	synth := &fakeSynth{err: fmt.Errorf("%w: empty response", ErrMalformedAnswer)}
	p := newTestPipeline(t, &fakeSearcher{docs: makeDocs(1)}, &fakeSearcher{}, synth)

	_, err := p.ProcessQuery(context.Background(), Query{Text: "q", Mode: ModeSemantic, K: 2})
	assert.ErrorIs(t, err, ErrMalformedAnswer)
	assert.NotErrorIs(t, err, ErrRetrievalDegraded)
}

func TestProcessQuery_PlainSearchErrorIsNotDegraded(t *testing.T) {
	p := newTestPipeline(t, &fakeSearcher{}, &fakeSearcher{err: errors.New("disk I/O error")}, &fakeSynth{})

	_, err := p.ProcessQuery(context.Background(), Query{Text: "q", Mode: ModeLexical, K: 2})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRetrievalDegraded)
}

func TestNewPipeline_RequiresBackends(t *testing.T) {
	_, err := NewPipeline(nil, &fakeSearcher{}, &fakeSynth{})
	assert.ErrorIs(t, err, ErrIndexUnavailable)

	_, err = NewPipeline(&fakeSearcher{}, &fakeSearcher{}, nil)
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"semantic", ModeSemantic},
		{"rag", ModeSemantic},
		{" Lexical ", ModeLexical},
		{"keyword", ModeLexical},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseMode("hybrid")
	assert.ErrorIs(t, err, ErrInvalidMode)
}
