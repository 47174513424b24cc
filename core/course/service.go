package course

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/academy/core"
	"github.com/trezcool/academy/core/user"
)

var (
	// errors
	ErrNotFound          = errors.New("not found")
	ErrInvalidKind       = errors.New("invalid item kind")
	ErrForbidden         = errors.New("you do not have permission to edit this course")
	ErrCrossCourseMove   = errors.New("items cannot be moved to another course")
	ErrNotEnrolled       = errors.New("you are not enrolled in this course")
	ErrPaymentRequired   = errors.New("this course requires a payment")
	ErrItemLocked        = errors.New("this item is locked")
	ErrAnswerRequired    = errors.New("a question is completed by answering it")
	ErrLessonHasContents = errors.New("a lesson with contents is started and completed through its contents")
	ErrNotQuestion       = errors.New("this content is not a question")
	ErrChoiceNotFound    = errors.New("invalid choice")
)

type EventType string

const (
	EventItemStarted     EventType = "item.started"
	EventItemCompleted   EventType = "item.completed"
	EventQuestionAnswer  EventType = "question.answered"
	EventCourseCompleted EventType = "course.completed"
	EventProgressReset   EventType = "progress.reset"
)

// Event is a progress change of a user, published for downstream consumers.
type Event struct {
	Type       EventType `json:"type"`
	UserID     string    `json:"user_id"`
	CourseID   string    `json:"course_id"`
	ItemKind   ItemKind  `json:"item_kind,omitempty"`
	ItemID     string    `json:"item_id,omitempty"`
	Correct    *bool     `json:"correct,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type AnswerResult struct {
	Correct bool    `json:"correct"`
	Reading Reading `json:"reading"`
}

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course) (Course, error)
		// QueryCourses applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on Course.Title or Course.Description.
		QueryCourses(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		// GetCourse returns the course without its tree.
		GetCourse(ctx context.Context, id string) (Course, error)
		// GetOutline returns the course with its whole tree.
		GetOutline(ctx context.Context, id string) (Course, error)
		UpdateCourse(ctx context.Context, c Course) (Course, error)
		DeleteCourse(ctx context.Context, id string) error

		CreateSection(ctx context.Context, sec Section) (Section, error)
		UpdateSection(ctx context.Context, sec Section) error
		CreateLesson(ctx context.Context, les Lesson) (Lesson, error)
		UpdateLesson(ctx context.Context, les Lesson) error
		CreateContent(ctx context.Context, cnt Content) (Content, error)
		UpdateContent(ctx context.Context, cnt Content) error
		// FindItemCourse returns the ID of the course holding the item.
		FindItemCourse(ctx context.Context, kind ItemKind, id string) (string, error)
		// DeleteItem deletes the item (and its subtree) & saves the renumbered siblings atomically.
		DeleteItem(ctx context.Context, kind ItemKind, id string, renumbered []Placement) error
		// ApplyPlacements saves the container & index of the given items atomically.
		ApplyPlacements(ctx context.Context, placements []Placement) error
		// EditTree locks the course & runs edit with the course tree read under that lock, and a
		// Repository whose writes are committed with it. Nothing is saved when edit fails.
		EditTree(ctx context.Context, courseID string, edit func(repo Repository, c Course) error) error

		GetEnrollment(ctx context.Context, userID, courseID string) (Enrollment, error)
		CreateEnrollment(ctx context.Context, enr Enrollment) (Enrollment, error)

		QueryProgress(ctx context.Context, userID, courseID string) ([]Progress, error)
		// SaveProgress inserts or replaces the records.
		SaveProgress(ctx context.Context, records ...Progress) error
		DeleteProgress(ctx context.Context, userID, courseID string) (int, error)
	}

	// OutlineCache keeps course outlines between requests.
	OutlineCache interface {
		GetOutline(ctx context.Context, id string) (Course, bool, error)
		SetOutline(ctx context.Context, c Course) error
		DeleteOutline(ctx context.Context, id string) error
	}

	EventPublisher interface {
		Publish(ctx context.Context, events ...Event) error
	}

	Service interface {
		Create(ctx context.Context, author user.User, nc NewCourse) (Course, error)
		Query(ctx context.Context, viewer user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		// Get returns the course outline; answers are hidden from learners.
		Get(ctx context.Context, viewer user.User, id string) (Course, error)
		Update(ctx context.Context, editor user.User, id string, uc UpdateCourse) (Course, error)
		Delete(ctx context.Context, editor user.User, id string) error

		AddSection(ctx context.Context, editor user.User, courseID string, ns NewSection) (Section, error)
		UpdateSection(ctx context.Context, editor user.User, id string, us NewSection) (Section, error)
		AddLesson(ctx context.Context, editor user.User, sectionID string, nl NewLesson) (Lesson, error)
		UpdateLesson(ctx context.Context, editor user.User, id string, ul UpdateLesson) (Lesson, error)
		GetContent(ctx context.Context, editor user.User, id string) (Content, error)
		AddContent(ctx context.Context, editor user.User, lessonID string, nc NewContent) (Content, error)
		// UpdateContent expects uc to be validated against the original content.
		UpdateContent(ctx context.Context, editor user.User, id string, uc UpdateContent) (Content, error)
		DeleteItem(ctx context.Context, editor user.User, kind ItemKind, id string) error
		Move(ctx context.Context, editor user.User, kind ItemKind, id string, mv MoveItem) (Course, error)

		Enroll(ctx context.Context, usr user.User, courseID string) (Enrollment, error)
		Grant(ctx context.Context, granter user.User, userID, courseID string) (Enrollment, error)

		Read(ctx context.Context, usr user.User, courseID string) (Reading, error)
		Start(ctx context.Context, usr user.User, kind ItemKind, id string) (Reading, error)
		Complete(ctx context.Context, usr user.User, kind ItemKind, id string) (Reading, error)
		Answer(ctx context.Context, usr user.User, contentID, choiceID string) (AnswerResult, error)
		Reset(ctx context.Context, usr user.User, courseID string) error
	}

	service struct {
		repo    Repository
		cache   OutlineCache
		events  EventPublisher
		mailSvc core.EmailService
		logger  core.Logger
		now     func() time.Time
	}
)

var _ Service = (*service)(nil)

// orderingFields are the Course fields that may be used for ordering queries.
var orderingFields = []string{"title", "price", "is_published", "created_at", "updated_at"}

// NewService returns the course service. cache & events are optional.
func NewService(repo Repository, cache OutlineCache, events EventPublisher, mailSvc core.EmailService, logger core.Logger) Service {
	if cache == nil {
		cache = nopCache{}
	}
	if events == nil {
		events = nopPublisher{}
	}
	return &service{
		repo:    repo,
		cache:   cache,
		events:  events,
		mailSvc: mailSvc,
		logger:  logger,
		now:     time.Now,
	}
}

// access rules

func canEdit(usr user.User, c Course) bool {
	return usr.IsAdmin() || (usr.IsInstructor() && c.AuthorID == usr.ID)
}

func canView(usr user.User, c Course) bool {
	return c.IsPublished || canEdit(usr, c)
}

func (svc *service) checkEditor(usr user.User, c Course) error {
	if !canEdit(usr, c) {
		if !canView(usr, c) {
			return ErrNotFound
		}
		return ErrForbidden
	}
	return nil
}

// checkLearner allows staff & users enrolled in the course.
func (svc *service) checkLearner(ctx context.Context, usr user.User, c Course) error {
	if !canView(usr, c) {
		return ErrNotFound
	}
	if usr.IsStaff() {
		return nil
	}
	if _, err := svc.repo.GetEnrollment(ctx, usr.ID, c.ID); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return ErrNotEnrolled
		}
		return errors.Wrap(err, "getting enrollment")
	}
	return nil
}

// outlines

func (svc *service) outline(ctx context.Context, id string) (Course, error) {
	c, ok, err := svc.cache.GetOutline(ctx, id)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("getting cached outline: %v", err), err)
	}
	if ok {
		return c, nil
	}

	if c, err = svc.repo.GetOutline(ctx, id); err != nil {
		return Course{}, err
	}
	c.Sort()
	if err = svc.cache.SetOutline(ctx, c); err != nil {
		svc.logger.Warn(fmt.Sprintf("caching outline: %v", err), err)
	}
	return c, nil
}

func (svc *service) itemOutline(ctx context.Context, kind ItemKind, id string) (Course, error) {
	courseID, err := svc.repo.FindItemCourse(ctx, kind, id)
	if err != nil {
		return Course{}, err
	}
	return svc.outline(ctx, courseID)
}

func (svc *service) invalidate(ctx context.Context, id string) {
	if err := svc.cache.DeleteOutline(ctx, id); err != nil {
		svc.logger.Warn(fmt.Sprintf("invalidating cached outline: %v", err), err)
	}
}

// editTree runs edit on the stored tree of the course once the editor is checked.
// Cached outlines are never edited: sibling indices come from the locked tree.
func (svc *service) editTree(ctx context.Context, editor user.User, courseID string, edit func(repo Repository, c *Course) error) error {
	err := svc.repo.EditTree(ctx, courseID, func(repo Repository, c Course) error {
		if err := svc.checkEditor(editor, c); err != nil {
			return err
		}
		return edit(repo, &c)
	})
	if err != nil {
		return err
	}
	svc.invalidate(ctx, courseID)
	return nil
}

func (svc *service) publish(ctx context.Context, events ...Event) {
	if err := svc.events.Publish(ctx, events...); err != nil {
		svc.logger.Error(fmt.Sprintf("publishing progress events: %v", err), err)
	}
}

// courses

func (svc *service) Create(ctx context.Context, author user.User, nc NewCourse) (Course, error) {
	if !author.IsStaff() {
		return Course{}, ErrForbidden
	}
	now := svc.now().UTC()
	return svc.repo.CreateCourse(ctx, Course{
		Title:       nc.Title,
		Description: nc.Description,
		Price:       nc.Price,
		IsPublished: nc.IsPublished,
		AuthorID:    author.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *service) Query(ctx context.Context, viewer user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	if !viewer.IsStaff() {
		published := true
		filter.IsPublished = &published
	}
	courses, err := svc.repo.QueryCourses(ctx, filter, core.FilterOrderings(ordering, orderingFields...))
	if err != nil {
		return nil, err
	}
	if viewer.IsAdmin() || !viewer.IsStaff() {
		return courses, nil
	}
	// instructors see the published courses & their own drafts
	visible := courses[:0]
	for _, c := range courses {
		if canView(viewer, c) {
			visible = append(visible, c)
		}
	}
	return visible, nil
}

func (svc *service) Get(ctx context.Context, viewer user.User, id string) (Course, error) {
	c, err := svc.outline(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if !canView(viewer, c) {
		return Course{}, ErrNotFound
	}
	if !canEdit(viewer, c) {
		return c.WithoutAnswers(), nil
	}
	return c, nil
}

func (svc *service) Update(ctx context.Context, editor user.User, id string, uc UpdateCourse) (Course, error) {
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if err = svc.checkEditor(editor, c); err != nil {
		return Course{}, err
	}

	if uc.Title != "" {
		c.Title = uc.Title
	}
	if uc.Description != nil {
		c.Description = *uc.Description
	}
	if uc.Price != nil {
		c.Price = *uc.Price
	}
	if uc.IsPublished != nil {
		c.IsPublished = *uc.IsPublished
	}
	c.UpdatedAt = svc.now().UTC()

	if c, err = svc.repo.UpdateCourse(ctx, c); err != nil {
		return Course{}, err
	}
	svc.invalidate(ctx, id)
	return c, nil
}

func (svc *service) Delete(ctx context.Context, editor user.User, id string) error {
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return err
	}
	if err = svc.checkEditor(editor, c); err != nil {
		return err
	}
	if err = svc.repo.DeleteCourse(ctx, id); err != nil {
		return err
	}
	svc.invalidate(ctx, id)
	return nil
}

// tree

func (svc *service) AddSection(ctx context.Context, editor user.User, courseID string, ns NewSection) (Section, error) {
	var sec Section
	err := svc.editTree(ctx, editor, courseID, func(repo Repository, c *Course) error {
		idx, err := c.NextIndex(KindSection, courseID)
		if err != nil {
			return err
		}
		sec, err = repo.CreateSection(ctx, Section{CourseID: courseID, Title: ns.Title, Index: idx})
		return err
	})
	if err != nil {
		return Section{}, err
	}
	return sec, nil
}

func (svc *service) UpdateSection(ctx context.Context, editor user.User, id string, us NewSection) (Section, error) {
	courseID, err := svc.repo.FindItemCourse(ctx, KindSection, id)
	if err != nil {
		return Section{}, err
	}

	var sec Section
	err = svc.editTree(ctx, editor, courseID, func(repo Repository, c *Course) error {
		orig, _ := c.section(id)
		if orig == nil {
			return ErrNotFound
		}
		sec = *orig
		sec.Title = us.Title
		return repo.UpdateSection(ctx, sec)
	})
	if err != nil {
		return Section{}, err
	}
	return sec, nil
}

func (svc *service) AddLesson(ctx context.Context, editor user.User, sectionID string, nl NewLesson) (Lesson, error) {
	courseID, err := svc.repo.FindItemCourse(ctx, KindSection, sectionID)
	if err != nil {
		return Lesson{}, err
	}

	var les Lesson
	err = svc.editTree(ctx, editor, courseID, func(repo Repository, c *Course) error {
		idx, err := c.NextIndex(KindLesson, sectionID)
		if err != nil {
			return err
		}
		les, err = repo.CreateLesson(ctx, Lesson{SectionID: sectionID, Title: nl.Title, Body: nl.Body, Index: idx})
		return err
	})
	if err != nil {
		return Lesson{}, err
	}
	return les, nil
}

func (svc *service) UpdateLesson(ctx context.Context, editor user.User, id string, ul UpdateLesson) (Lesson, error) {
	courseID, err := svc.repo.FindItemCourse(ctx, KindLesson, id)
	if err != nil {
		return Lesson{}, err
	}

	var les Lesson
	err = svc.editTree(ctx, editor, courseID, func(repo Repository, c *Course) error {
		orig, _, _ := c.lesson(id)
		if orig == nil {
			return ErrNotFound
		}
		les = *orig
		if ul.Title != "" {
			les.Title = ul.Title
		}
		if ul.Body != nil {
			les.Body = *ul.Body
		}
		return repo.UpdateLesson(ctx, les)
	})
	if err != nil {
		return Lesson{}, err
	}
	return les, nil
}

func (svc *service) GetContent(ctx context.Context, editor user.User, id string) (Content, error) {
	c, err := svc.itemOutline(ctx, KindContent, id)
	if err != nil {
		return Content{}, err
	}
	if err = svc.checkEditor(editor, c); err != nil {
		return Content{}, err
	}
	cnt, _, _ := c.content(id)
	if cnt == nil {
		return Content{}, ErrNotFound
	}
	return *cnt, nil
}

func (svc *service) AddContent(ctx context.Context, editor user.User, lessonID string, nc NewContent) (Content, error) {
	courseID, err := svc.repo.FindItemCourse(ctx, KindLesson, lessonID)
	if err != nil {
		return Content{}, err
	}

	var cnt Content
	err = svc.editTree(ctx, editor, courseID, func(repo Repository, c *Course) error {
		idx, err := c.NextIndex(KindContent, lessonID)
		if err != nil {
			return err
		}
		cnt, err = repo.CreateContent(ctx, Content{
			LessonID: lessonID,
			Kind:     nc.Kind,
			Body:     nc.Body,
			Index:    idx,
			Choices:  makeChoices(nc.Choices, nil),
		})
		return err
	})
	if err != nil {
		return Content{}, err
	}
	return cnt, nil
}

func (svc *service) UpdateContent(ctx context.Context, editor user.User, id string, uc UpdateContent) (Content, error) {
	courseID, err := svc.repo.FindItemCourse(ctx, KindContent, id)
	if err != nil {
		return Content{}, err
	}

	var cnt Content
	err = svc.editTree(ctx, editor, courseID, func(repo Repository, c *Course) error {
		orig, _, _ := c.content(id)
		if orig == nil {
			return ErrNotFound
		}
		cnt = *orig
		cnt.Body = uc.Body
		cnt.Choices = makeChoices(uc.Choices, orig.Choices)
		return repo.UpdateContent(ctx, cnt)
	})
	if err != nil {
		return Content{}, err
	}
	return cnt, nil
}

// makeChoices builds the choices of a content. A choice keeps its ID when its text is unchanged.
func makeChoices(ncs []NewChoice, orig []Choice) []Choice {
	if len(ncs) == 0 {
		return nil
	}
	choices := make([]Choice, 0, len(ncs))
	for i, nc := range ncs {
		id := uuid.New().String()
		if i < len(orig) && orig[i].Text == nc.Text {
			id = orig[i].ID
		}
		choices = append(choices, Choice{ID: id, Text: nc.Text, IsCorrect: nc.IsCorrect})
	}
	return choices
}

func (svc *service) DeleteItem(ctx context.Context, editor user.User, kind ItemKind, id string) error {
	if kind != KindSection && kind != KindLesson && kind != KindContent {
		return ErrInvalidKind
	}
	courseID, err := svc.repo.FindItemCourse(ctx, kind, id)
	if err != nil {
		return err
	}

	return svc.editTree(ctx, editor, courseID, func(repo Repository, c *Course) error {
		renumbered, err := c.Remove(kind, id)
		if err != nil {
			return err
		}
		return repo.DeleteItem(ctx, kind, id, renumbered)
	})
}

func (svc *service) Move(ctx context.Context, editor user.User, kind ItemKind, id string, mv MoveItem) (Course, error) {
	if kind != KindSection && kind != KindLesson && kind != KindContent {
		return Course{}, ErrInvalidKind
	}
	courseID, err := svc.repo.FindItemCourse(ctx, kind, id)
	if err != nil {
		return Course{}, err
	}
	if mv.ParentID != "" {
		targetCourseID, err := svc.repo.FindItemCourse(ctx, kind.ParentKind(), mv.ParentID)
		if err != nil {
			return Course{}, err
		}
		if targetCourseID != courseID {
			return Course{}, ErrCrossCourseMove
		}
	}

	var moved Course
	err = svc.editTree(ctx, editor, courseID, func(repo Repository, c *Course) error {
		placements, err := c.Move(kind, id, mv.ParentID, mv.Index)
		if err != nil {
			return err
		}
		moved = *c
		return repo.ApplyPlacements(ctx, placements)
	})
	if err != nil {
		return Course{}, err
	}
	return moved, nil
}

// enrollments

func (svc *service) Enroll(ctx context.Context, usr user.User, courseID string) (Enrollment, error) {
	c, err := svc.repo.GetCourse(ctx, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	if !c.IsPublished {
		return Enrollment{}, ErrNotFound
	}
	if !c.IsFree() {
		return Enrollment{}, ErrPaymentRequired
	}
	return svc.enroll(ctx, usr.ID, courseID, "")
}

func (svc *service) Grant(ctx context.Context, granter user.User, userID, courseID string) (Enrollment, error) {
	c, err := svc.repo.GetCourse(ctx, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	if err = svc.checkEditor(granter, c); err != nil {
		return Enrollment{}, err
	}
	return svc.enroll(ctx, userID, courseID, granter.ID)
}

func (svc *service) enroll(ctx context.Context, userID, courseID, grantedBy string) (Enrollment, error) {
	enr, err := svc.repo.GetEnrollment(ctx, userID, courseID)
	if err == nil {
		return enr, nil
	}
	if errors.Cause(err) != ErrNotFound {
		return Enrollment{}, errors.Wrap(err, "getting enrollment")
	}
	return svc.repo.CreateEnrollment(ctx, Enrollment{
		UserID:    userID,
		CourseID:  courseID,
		GrantedBy: grantedBy,
		CreatedAt: svc.now().UTC(),
	})
}

// progress

// learnerState is the state of a course for a learner.
type learnerState struct {
	course  Course
	records []Progress
	reading Reading
}

func (svc *service) learnerState(ctx context.Context, usr user.User, c Course) (learnerState, error) {
	if err := svc.checkLearner(ctx, usr, c); err != nil {
		return learnerState{}, err
	}
	records, err := svc.repo.QueryProgress(ctx, usr.ID, c.ID)
	if err != nil {
		return learnerState{}, errors.Wrap(err, "querying progress")
	}
	return learnerState{course: c, records: records, reading: Rollup(c, records)}, nil
}

func (svc *service) itemState(ctx context.Context, usr user.User, kind ItemKind, id string) (learnerState, error) {
	if kind != KindLesson && kind != KindContent {
		return learnerState{}, ErrInvalidKind
	}
	c, err := svc.itemOutline(ctx, kind, id)
	if err != nil {
		return learnerState{}, err
	}
	return svc.learnerState(ctx, usr, c)
}

func (st learnerState) record(kind ItemKind, id string) (Progress, bool) {
	for _, rec := range st.records {
		if rec.ItemKind == kind && rec.ItemID == id {
			return rec, true
		}
	}
	return Progress{}, false
}

func (svc *service) Read(ctx context.Context, usr user.User, courseID string) (Reading, error) {
	c, err := svc.outline(ctx, courseID)
	if err != nil {
		return Reading{}, err
	}
	st, err := svc.learnerState(ctx, usr, c)
	if err != nil {
		return Reading{}, err
	}
	return st.reading, nil
}

// Start records that the user started the next leaf.
func (svc *service) Start(ctx context.Context, usr user.User, kind ItemKind, id string) (Reading, error) {
	st, err := svc.itemState(ctx, usr, kind, id)
	if err != nil {
		return Reading{}, err
	}

	status, _ := st.reading.StatusOf(kind, id)
	if status == StatusCompleted {
		return st.reading, nil
	}
	if kind == KindLesson {
		if les, _, _ := st.course.lesson(id); les != nil && len(les.Contents) > 0 {
			return Reading{}, ErrLessonHasContents
		}
	}
	if !st.reading.IsNext(kind, id) {
		return Reading{}, ErrItemLocked
	}
	if err = svc.markStarted(ctx, usr, st, kind, id); err != nil {
		return Reading{}, err
	}
	return st.reading, nil
}

func (svc *service) markStarted(ctx context.Context, usr user.User, st learnerState, kind ItemKind, id string) error {
	if _, ok := st.record(kind, id); ok {
		return nil
	}
	now := svc.now().UTC()
	rec := Progress{
		UserID:    usr.ID,
		CourseID:  st.course.ID,
		ItemKind:  kind,
		ItemID:    id,
		Status:    StatusStarted,
		StartedAt: now,
	}
	if err := svc.repo.SaveProgress(ctx, rec); err != nil {
		return errors.Wrap(err, "saving progress")
	}
	svc.publish(ctx, Event{Type: EventItemStarted, UserID: usr.ID, CourseID: st.course.ID, ItemKind: kind, ItemID: id, OccurredAt: now})
	return nil
}

// Complete completes the next leaf when it is an explanation or a lesson without contents.
func (svc *service) Complete(ctx context.Context, usr user.User, kind ItemKind, id string) (Reading, error) {
	st, err := svc.itemState(ctx, usr, kind, id)
	if err != nil {
		return Reading{}, err
	}

	status, _ := st.reading.StatusOf(kind, id)
	if status == StatusCompleted {
		return st.reading, nil
	}
	switch kind {
	case KindLesson:
		if les, _, _ := st.course.lesson(id); les != nil && len(les.Contents) > 0 {
			return Reading{}, ErrLessonHasContents
		}
	case KindContent:
		if cnt, _, _ := st.course.content(id); cnt != nil && cnt.Kind == ContentQuestion {
			return Reading{}, ErrAnswerRequired
		}
	}
	if !st.reading.IsNext(kind, id) {
		return Reading{}, ErrItemLocked
	}
	return svc.complete(ctx, usr, st, kind, id)
}

// complete saves the completion of the leaf, and of its lesson when it is the last content left.
func (svc *service) complete(ctx context.Context, usr user.User, st learnerState, kind ItemKind, id string) (Reading, error) {
	now := svc.now().UTC()
	records := []Progress{svc.completedRecord(usr, st, kind, id, now)}
	if kind == KindContent {
		if _, les, _ := st.course.content(id); les != nil && st.lastContentLeft(les, id) {
			records = append(records, svc.completedRecord(usr, st, KindLesson, les.ID, now))
		}
	}
	if err := svc.repo.SaveProgress(ctx, records...); err != nil {
		return Reading{}, errors.Wrap(err, "saving progress")
	}

	events := make([]Event, 0, len(records)+1)
	for _, rec := range records {
		events = append(events, Event{Type: EventItemCompleted, UserID: usr.ID, CourseID: st.course.ID, ItemKind: rec.ItemKind, ItemID: rec.ItemID, OccurredAt: now})
	}
	rd := Rollup(st.course, append(st.records, records...))
	if rd.Next == nil && st.reading.Next != nil {
		events = append(events, Event{Type: EventCourseCompleted, UserID: usr.ID, CourseID: st.course.ID, OccurredAt: now})
		svc.sendCourseCompletedMail(usr, st.course)
	}
	svc.publish(ctx, events...)
	return rd, nil
}

func (svc *service) completedRecord(usr user.User, st learnerState, kind ItemKind, id string, now time.Time) Progress {
	rec, ok := st.record(kind, id)
	if !ok {
		rec = Progress{
			UserID:    usr.ID,
			CourseID:  st.course.ID,
			ItemKind:  kind,
			ItemID:    id,
			StartedAt: now,
		}
	}
	rec.Status = StatusCompleted
	rec.CompletedAt = now
	return rec
}

// lastContentLeft reports whether every content of les but id is completed.
func (st learnerState) lastContentLeft(les *Lesson, id string) bool {
	for _, cnt := range les.Contents {
		if cnt.ID == id {
			continue
		}
		if status, _ := st.reading.StatusOf(KindContent, cnt.ID); status != StatusCompleted {
			return false
		}
	}
	return true
}

func (svc *service) sendCourseCompletedMail(usr user.User, c Course) {
	if usr.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Course Completed",
		TemplateName: "course_completed",
		TemplateData: map[string]string{
			"Name":        usr.Name,
			"CourseTitle": c.Title,
			"CourseID":    c.ID,
		},
	})
}

// Answer checks the answer to the next question. A correct answer completes it.
func (svc *service) Answer(ctx context.Context, usr user.User, contentID, choiceID string) (AnswerResult, error) {
	st, err := svc.itemState(ctx, usr, KindContent, contentID)
	if err != nil {
		return AnswerResult{}, err
	}
	cnt, _, _ := st.course.content(contentID)
	if cnt == nil {
		return AnswerResult{}, ErrNotFound
	}
	if cnt.Kind != ContentQuestion {
		return AnswerResult{}, ErrNotQuestion
	}

	var choice *Choice
	for i := range cnt.Choices {
		if cnt.Choices[i].ID == choiceID {
			choice = &cnt.Choices[i]
			break
		}
	}
	if choice == nil {
		return AnswerResult{}, core.NewValidationError(ErrChoiceNotFound, core.FieldError{Field: "choice_id", Error: ErrChoiceNotFound.Error()})
	}
	res := AnswerResult{Correct: choice.IsCorrect, Reading: st.reading}

	status, _ := st.reading.StatusOf(KindContent, contentID)
	if status == StatusCompleted {
		return res, nil
	}
	if !st.reading.IsNext(KindContent, contentID) {
		return AnswerResult{}, ErrItemLocked
	}

	correct := res.Correct
	svc.publish(ctx, Event{Type: EventQuestionAnswer, UserID: usr.ID, CourseID: st.course.ID, ItemKind: KindContent, ItemID: contentID, Correct: &correct, OccurredAt: svc.now().UTC()})
	if !correct {
		if err = svc.markStarted(ctx, usr, st, KindContent, contentID); err != nil {
			return AnswerResult{}, err
		}
		return res, nil
	}
	if res.Reading, err = svc.complete(ctx, usr, st, KindContent, contentID); err != nil {
		return AnswerResult{}, err
	}
	return res, nil
}

func (svc *service) Reset(ctx context.Context, usr user.User, courseID string) error {
	c, err := svc.repo.GetCourse(ctx, courseID)
	if err != nil {
		return err
	}
	if err = svc.checkLearner(ctx, usr, c); err != nil {
		return err
	}
	if _, err = svc.repo.DeleteProgress(ctx, usr.ID, courseID); err != nil {
		return errors.Wrap(err, "deleting progress")
	}
	svc.publish(ctx, Event{Type: EventProgressReset, UserID: usr.ID, CourseID: courseID, OccurredAt: svc.now().UTC()})
	return nil
}

type nopCache struct{}

func (nopCache) GetOutline(context.Context, string) (Course, bool, error) { return Course{}, false, nil }
func (nopCache) SetOutline(context.Context, Course) error                 { return nil }
func (nopCache) DeleteOutline(context.Context, string) error              { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, ...Event) error { return nil }
