package course

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hasItem reports whether the item of kind k & ID id belongs to the course tree.
func hasItem(c Course, k ItemKind, id string) bool {
	switch k {
	case KindCourse:
		return c.ID == id
	case KindSection:
		sec, _ := c.section(id)
		return sec != nil
	case KindLesson:
		les, _, _ := c.lesson(id)
		return les != nil
	case KindContent:
		cnt, _, _ := c.content(id)
		return cnt != nil
	}
	return false
}

func sectionIDs(c Course) []string {
	ids := make([]string, 0, len(c.Sections))
	for _, sec := range c.Sections {
		ids = append(ids, sec.ID)
	}
	return ids
}

func lessonIDs(sec Section) []string {
	ids := make([]string, 0, len(sec.Lessons))
	for _, les := range sec.Lessons {
		ids = append(ids, les.ID)
	}
	return ids
}

func contentIDs(les Lesson) []string {
	ids := make([]string, 0, len(les.Contents))
	for _, cnt := range les.Contents {
		ids = append(ids, cnt.ID)
	}
	return ids
}

// checkDense fails if any container of c is not indexed 0..n-1 in order.
func checkDense(t *testing.T, c Course) {
	t.Helper()
	for si, sec := range c.Sections {
		assert.Equal(t, si, sec.Index, "section %s", sec.ID)
		for li, les := range sec.Lessons {
			assert.Equal(t, li, les.Index, "lesson %s", les.ID)
			assert.Equal(t, sec.ID, les.SectionID, "lesson %s", les.ID)
			for ci, cnt := range les.Contents {
				assert.Equal(t, ci, cnt.Index, "content %s", cnt.ID)
				assert.Equal(t, les.ID, cnt.LessonID, "content %s", cnt.ID)
			}
		}
	}
}

func TestCourse_Move(t *testing.T) {
	tests := []struct {
		name      string
		kind      ItemKind
		id        string
		parentID  string
		index     int
		wantErr   error
		wantPlace int // number of returned placements
		check     func(t *testing.T, c Course)
	}{
		{
			name: "section down", kind: KindSection, id: "s1", index: 2, wantPlace: 3,
			check: func(t *testing.T, c Course) {
				assert.Equal(t, []string{"s2", "s3", "s1"}, sectionIDs(c))
			},
		},
		{
			name: "section index clamped", kind: KindSection, id: "s3", index: -4, wantPlace: 3,
			check: func(t *testing.T, c Course) {
				assert.Equal(t, []string{"s3", "s1", "s2"}, sectionIDs(c))
			},
		},
		{
			name: "section with own course as parent", kind: KindSection, id: "s2", parentID: "course", index: 0, wantPlace: 3,
			check: func(t *testing.T, c Course) {
				assert.Equal(t, []string{"s2", "s1", "s3"}, sectionIDs(c))
			},
		},
		{
			name: "section to another course", kind: KindSection, id: "s2", parentID: "other", wantErr: ErrNotFound,
		},
		{
			name: "lesson within section", kind: KindLesson, id: "l2", index: 0, wantPlace: 2,
			check: func(t *testing.T, c Course) {
				assert.Equal(t, []string{"l2", "l1"}, lessonIDs(c.Sections[0]))
			},
		},
		{
			name: "lesson to empty section", kind: KindLesson, id: "l1", parentID: "s2", index: 7, wantPlace: 2,
			check: func(t *testing.T, c Course) {
				assert.Equal(t, []string{"l2"}, lessonIDs(c.Sections[0]))
				assert.Equal(t, []string{"l1"}, lessonIDs(c.Sections[1]))
				assert.Equal(t, []string{"c1", "c2"}, contentIDs(c.Sections[1].Lessons[0]))
			},
		},
		{
			name: "lesson between sections", kind: KindLesson, id: "l3", parentID: "s1", index: 1, wantPlace: 3,
			check: func(t *testing.T, c Course) {
				assert.Equal(t, []string{"l1", "l3", "l2"}, lessonIDs(c.Sections[0]))
				assert.Empty(t, c.Sections[2].Lessons)
			},
		},
		{
			name: "lesson to unknown section", kind: KindLesson, id: "l1", parentID: "nope", wantErr: ErrNotFound,
		},
		{
			name: "content within lesson", kind: KindContent, id: "c1", index: 1, wantPlace: 2,
			check: func(t *testing.T, c Course) {
				assert.Equal(t, []string{"c2", "c1"}, contentIDs(c.Sections[0].Lessons[0]))
			},
		},
		{
			name: "content between lessons", kind: KindContent, id: "c3", parentID: "l1", index: 0, wantPlace: 3,
			check: func(t *testing.T, c Course) {
				assert.Equal(t, []string{"c3", "c1", "c2"}, contentIDs(c.Sections[0].Lessons[0]))
				assert.Empty(t, c.Sections[2].Lessons[0].Contents)
			},
		},
		{
			name: "content to lesson without contents", kind: KindContent, id: "c2", parentID: "l2", index: 1, wantPlace: 2,
			check: func(t *testing.T, c Course) {
				assert.Equal(t, []string{"c1"}, contentIDs(c.Sections[0].Lessons[0]))
				assert.Equal(t, []string{"c2"}, contentIDs(c.Sections[0].Lessons[1]))
			},
		},
		{
			name: "unknown item", kind: KindContent, id: "nope", wantErr: ErrNotFound,
		},
		{
			name: "invalid kind", kind: KindCourse, id: "course", wantErr: ErrInvalidKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testTree()
			placements, err := c.Move(tt.kind, tt.id, tt.parentID, tt.index)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, placements, tt.wantPlace)
			checkDense(t, c)
			tt.check(t, c)

			// placements mirror the updated tree
			for _, p := range placements {
				assert.True(t, hasItem(c, p.Kind, p.ID))
				assert.True(t, hasItem(c, p.Kind.ParentKind(), p.ParentID))
			}
		})
	}
}

func TestCourse_Remove(t *testing.T) {
	c := testTree()

	placements, err := c.Remove(KindContent, "c1")
	require.NoError(t, err)
	assert.Equal(t, []Placement{{Kind: KindContent, ID: "c2", ParentID: "l1", Index: 0}}, placements)

	placements, err = c.Remove(KindSection, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s2", "s3"}, sectionIDs(c))
	assert.Len(t, placements, 2)
	assert.False(t, hasItem(c, KindLesson, "l1"))
	checkDense(t, c)

	_, err = c.Remove(KindLesson, "l1")
	assert.Equal(t, ErrNotFound, err)
}

func TestCourse_NextIndex(t *testing.T) {
	c := testTree()
	tests := []struct {
		kind     ItemKind
		parentID string
		want     int
		wantErr  error
	}{
		{KindSection, "course", 3, nil},
		{KindSection, "other", 0, ErrNotFound},
		{KindLesson, "s1", 2, nil},
		{KindLesson, "s2", 0, nil},
		{KindContent, "l1", 2, nil},
		{KindContent, "l2", 0, nil},
		{KindContent, "nope", 0, ErrNotFound},
	}
	for _, tt := range tests {
		got, err := c.NextIndex(tt.kind, tt.parentID)
		assert.Equal(t, tt.wantErr, err, "%s %s", tt.kind, tt.parentID)
		assert.Equal(t, tt.want, got, "%s %s", tt.kind, tt.parentID)
	}
}

func TestCourse_WithoutAnswers(t *testing.T) {
	c := testTree()
	hidden := c.WithoutAnswers()

	assert.False(t, hidden.Sections[0].Lessons[0].Contents[1].Choices[0].IsCorrect)
	assert.True(t, c.Sections[0].Lessons[0].Contents[1].Choices[0].IsCorrect, "original tree must be left untouched")
}
