package retrieval

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterUnmarshal_ScalarAndSetForms(t *testing.T) {
	var f Filter
	err := json.Unmarshal([]byte(`{"course": {"$in": ["A", "B"]}, "semester": "WiSe 2023", "lecture": ["L1"]}`), &f)
	require.NoError(t, err)

	course := f[FacetCourse]
	assert.True(t, course.IsOneOf())
	assert.Equal(t, []string{"A", "B"}, course.Values())
	first, ok := course.First()
	assert.True(t, ok)
	assert.Equal(t, "A", first)

	semester := f[FacetSemester]
	assert.False(t, semester.IsOneOf())
	assert.Equal(t, []string{"WiSe 2023"}, semester.Values())

	assert.True(t, f[FacetLecture].IsOneOf())
}

func TestFilterUnmarshal_UnknownFacet(t *testing.T) {
	var f Filter
	err := json.Unmarshal([]byte(`{"instructor": "Smith"}`), &f)
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestFilterValueMarshal(t *testing.T) {
	data, err := json.Marshal(Filter{FacetCourse: OneOf("A", "B"), FacetLecture: Scalar("L")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"course": {"$in": ["A", "B"]}, "lecture": "L"}`, string(data))
}

func TestFilterNormalize(t *testing.T) {
	assert.Nil(t, Filter(nil).Normalize())
	assert.Nil(t, Filter{}.Normalize())
	assert.Nil(t, Filter{FacetCourse: OneOf(), FacetLecture: Scalar("")}.Normalize())

	f := Filter{FacetCourse: OneOf("", "A", "A"), FacetLecture: OneOf()}.Normalize()
	require.Len(t, f, 1)
	assert.Equal(t, []string{"A"}, f[FacetCourse].Values())
}

func TestFilterFlatten(t *testing.T) {
	flat := Filter{FacetLecture: OneOf("L1", "L2")}.Flatten()
	assert.Equal(t, map[string][]string{"lecture": {"L1", "L2"}}, flat)
}

func TestNewMetadata_AppliesSentinels(t *testing.T) {
	m := NewMetadata("", "", "", "", "")
	assert.Equal(t, UnknownCourse, m.Course)
	assert.Equal(t, UnknownLecture, m.Lecture)
	assert.Equal(t, UnknownSemester, m.Semester)
	assert.Equal(t, UnknownPage, m.Page)
	assert.Equal(t, UnknownHeader, m.Header)

	assert.Equal(t, m, MetadataFromMap(nil))
}

func TestMetadataString(t *testing.T) {
	m := NewMetadata("Machine Learning", "Deep Learning Fundamentals", "WiSe 2023", "30-42", "Training")
	assert.Equal(t,
		"{'course': 'Machine Learning', 'lecture': 'Deep Learning Fundamentals', 'semester': 'WiSe 2023', 'page': '30-42', 'header': 'Training'}",
		m.String())
	assert.Equal(t, m, MetadataFromMap(m.Map()))
}
