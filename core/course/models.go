package course

import (
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academy/core"
)

type (
	Status      string
	ItemKind    string
	ContentKind string
)

const (
	StatusLocked    Status = "locked"
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"

	KindCourse  ItemKind = "course"
	KindSection ItemKind = "section"
	KindLesson  ItemKind = "lesson"
	KindContent ItemKind = "content"

	ContentExplanation ContentKind = "explanation"
	ContentQuestion    ContentKind = "question"
)

// ParentKind returns the kind of container holding items of kind k.
func (k ItemKind) ParentKind() ItemKind {
	switch k {
	case KindSection:
		return KindCourse
	case KindLesson:
		return KindSection
	case KindContent:
		return KindLesson
	}
	return ""
}

type Course struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       int64     `json:"price"` // minor units; 0 means free
	IsPublished bool      `json:"is_published"`
	AuthorID    string    `json:"author_id"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
	Sections    []Section `json:"sections,omitempty"`
}

type Section struct {
	ID       string   `json:"id"`
	CourseID string   `json:"course_id"`
	Title    string   `json:"title"`
	Index    int      `json:"index"`
	Lessons  []Lesson `json:"lessons,omitempty"`
}

type Lesson struct {
	ID        string    `json:"id"`
	SectionID string    `json:"section_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Index     int       `json:"index"`
	Contents  []Content `json:"contents,omitempty"`
}

type Content struct {
	ID       string      `json:"id"`
	LessonID string      `json:"lesson_id"`
	Kind     ContentKind `json:"kind"`
	Body     string      `json:"body"`
	Index    int         `json:"index"`
	Choices  []Choice    `json:"choices,omitempty"`
}

type Choice struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct,omitempty"`
}

// Progress marks a Lesson or a Content as started or completed by a user.
type Progress struct {
	UserID      string    `json:"user_id"`
	CourseID    string    `json:"course_id"`
	ItemKind    ItemKind  `json:"item_kind"`
	ItemID      string    `json:"item_id"`
	Status      Status    `json:"status"`
	StartedAt   time.Time `json:"started_at"`             // UTC
	CompletedAt time.Time `json:"completed_at,omitempty"` // UTC
}

type Enrollment struct {
	UserID    string    `json:"user_id"`
	CourseID  string    `json:"course_id"`
	GrantedBy string    `json:"granted_by,omitempty"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// Placement is the position of a tree item: its container and its index in it.
type Placement struct {
	Kind     ItemKind
	ID       string
	ParentID string
	Index    int
}

// IsFree reports whether the course may be joined without a payment.
func (c *Course) IsFree() bool { return c.Price == 0 }

// Sort orders the whole tree by index.
func (c *Course) Sort() {
	sort.SliceStable(c.Sections, func(i, j int) bool { return c.Sections[i].Index < c.Sections[j].Index })
	for si := range c.Sections {
		sec := &c.Sections[si]
		sort.SliceStable(sec.Lessons, func(i, j int) bool { return sec.Lessons[i].Index < sec.Lessons[j].Index })
		for li := range sec.Lessons {
			les := &sec.Lessons[li]
			sort.SliceStable(les.Contents, func(i, j int) bool { return les.Contents[i].Index < les.Contents[j].Index })
		}
	}
}

// WithoutAnswers returns a copy of the course tree where no choice is flagged as correct.
func (c Course) WithoutAnswers() Course {
	sections := make([]Section, len(c.Sections))
	for si, sec := range c.Sections {
		lessons := make([]Lesson, len(sec.Lessons))
		for li, les := range sec.Lessons {
			contents := make([]Content, len(les.Contents))
			for ci, cnt := range les.Contents {
				cnt.Choices = hideAnswers(cnt.Choices)
				contents[ci] = cnt
			}
			les.Contents = contents
			lessons[li] = les
		}
		sec.Lessons = lessons
		sections[si] = sec
	}
	c.Sections = sections
	return c
}

func hideAnswers(choices []Choice) []Choice {
	if choices == nil {
		return nil
	}
	out := make([]Choice, len(choices))
	for i, ch := range choices {
		ch.IsCorrect = false
		out[i] = ch
	}
	return out
}

// section, lesson & content lookups on an outline

func (c *Course) section(id string) (*Section, int) {
	for i := range c.Sections {
		if c.Sections[i].ID == id {
			return &c.Sections[i], i
		}
	}
	return nil, -1
}

func (c *Course) lesson(id string) (*Lesson, *Section, int) {
	for si := range c.Sections {
		sec := &c.Sections[si]
		for li := range sec.Lessons {
			if sec.Lessons[li].ID == id {
				return &sec.Lessons[li], sec, li
			}
		}
	}
	return nil, nil, -1
}

func (c *Course) content(id string) (*Content, *Lesson, int) {
	for si := range c.Sections {
		sec := &c.Sections[si]
		for li := range sec.Lessons {
			les := &sec.Lessons[li]
			for ci := range les.Contents {
				if les.Contents[ci].ID == id {
					return &les.Contents[ci], les, ci
				}
			}
		}
	}
	return nil, nil, -1
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title       string `json:"title" validate:"required,notblank,max=255"`
	Description string `json:"description"`
	Price       int64  `json:"price" validate:"min=0"`
	IsPublished bool   `json:"is_published"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	return validate.Struct(nc)
}

// UpdateCourse defines what information may be provided to modify an existing Course.
// Empty/nil fields are left untouched.
type UpdateCourse struct {
	Title       string  `json:"title" validate:"omitempty,max=255"`
	Description *string `json:"description"`
	Price       *int64  `json:"price" validate:"omitempty,min=0"`
	IsPublished *bool   `json:"is_published"`
}

func (uc *UpdateCourse) Validate(validate *validator.Validate) error {
	uc.Title = core.CleanString(uc.Title)
	if uc.Description != nil {
		desc := core.CleanString(*uc.Description)
		uc.Description = &desc
	}
	return validate.Struct(uc)
}

type NewSection struct {
	Title string `json:"title" validate:"required,notblank,max=255"`
}

func (ns *NewSection) Validate(validate *validator.Validate) error {
	ns.Title = core.CleanString(ns.Title)
	return validate.Struct(ns)
}

type NewLesson struct {
	Title string `json:"title" validate:"required,notblank,max=255"`
	Body  string `json:"body"`
}

func (nl *NewLesson) Validate(validate *validator.Validate) error {
	nl.Title = core.CleanString(nl.Title)
	return validate.Struct(nl)
}

type UpdateLesson struct {
	Title string  `json:"title" validate:"omitempty,max=255"`
	Body  *string `json:"body"`
}

func (ul *UpdateLesson) Validate(validate *validator.Validate) error {
	ul.Title = core.CleanString(ul.Title)
	return validate.Struct(ul)
}

type NewChoice struct {
	Text      string `json:"text" validate:"required,notblank"`
	IsCorrect bool   `json:"is_correct"`
}

type NewContent struct {
	Kind    ContentKind `json:"kind" validate:"required,oneof=explanation question"`
	Body    string      `json:"body" validate:"required,notblank"`
	Choices []NewChoice `json:"choices" validate:"omitempty,dive"`
}

func (nc *NewContent) Validate(validate *validator.Validate) error {
	nc.Body = core.CleanString(nc.Body)
	for i := range nc.Choices {
		nc.Choices[i].Text = core.CleanString(nc.Choices[i].Text)
	}
	return validate.Struct(nc)
}

// UpdateContent replaces the Body and/or the Choices of a Content; the kind cannot change.
type UpdateContent struct {
	Body    string      `json:"body"`
	Choices []NewChoice `json:"choices" validate:"omitempty,dive"`
}

// Validate merges uc with the original Content & validates the result as a NewContent.
func (uc *UpdateContent) Validate(origCnt Content, validate *validator.Validate) error {
	if body := core.CleanString(uc.Body); body != "" {
		uc.Body = body
	} else {
		uc.Body = origCnt.Body
	}
	if uc.Choices == nil && origCnt.Choices != nil {
		uc.Choices = make([]NewChoice, 0, len(origCnt.Choices))
		for _, ch := range origCnt.Choices {
			uc.Choices = append(uc.Choices, NewChoice{Text: ch.Text, IsCorrect: ch.IsCorrect})
		}
	}
	nc := NewContent{Kind: origCnt.Kind, Body: uc.Body, Choices: uc.Choices}
	if err := nc.Validate(validate); err != nil {
		return err
	}
	uc.Choices = nc.Choices
	return nil
}

// MoveItem places an item at Index in the container ParentID (its current one when empty).
type MoveItem struct {
	ParentID string `json:"parent_id"`
	Index    int    `json:"index"`
}

type AnswerQuestion struct {
	ChoiceID string `json:"choice_id" validate:"required"`
}

func (aq *AnswerQuestion) Validate(validate *validator.Validate) error {
	aq.ChoiceID = core.CleanString(aq.ChoiceID)
	return validate.Struct(aq)
}

type GrantAccess struct {
	UserID string `json:"user_id" validate:"required"`
}

func (ga *GrantAccess) Validate(validate *validator.Validate) error {
	ga.UserID = core.CleanString(ga.UserID)
	return validate.Struct(ga)
}

type QueryFilter struct {
	Search      string `query:"search"`
	IsPublished *bool  `query:"is_published"`
	AuthorID    string `query:"author"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.AuthorID = core.CleanString(qf.AuthorID)
}
