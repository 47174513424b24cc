package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/academy/core"
	"github.com/trezcool/academy/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db}
}

// courses

func (repo *courseRepository) CreateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	c.ID = uuid.New().String()
	c.Sections = nil
	repo.db.courses[c.ID] = &c
	return c, nil
}

func (repo *courseRepository) QueryCourses(_ context.Context, filter *course.QueryFilter, ordering []core.DBOrdering) ([]course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	courses := make([]course.Course, 0)
	for _, c := range repo.db.courses {
		if matchCourse(*c, filter) {
			courses = append(courses, *c)
		}
	}
	sort.SliceStable(courses, func(i, j int) bool {
		for _, ord := range ordering {
			cmp := compareCourses(courses[i], courses[j], ord.Field)
			if cmp == 0 {
				continue
			}
			if ord.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return courses[i].CreatedAt.Before(courses[j].CreatedAt)
	})
	return courses, nil
}

func matchCourse(c course.Course, filter *course.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		if !(strings.Contains(strings.ToLower(c.Title), search) || strings.Contains(strings.ToLower(c.Description), search)) {
			return false
		}
	}
	if filter.IsPublished != nil && c.IsPublished != *filter.IsPublished {
		return false
	}
	if filter.AuthorID != "" && c.AuthorID != filter.AuthorID {
		return false
	}
	return true
}

func compareCourses(c1, c2 course.Course, field string) int {
	switch field {
	case "title":
		return strings.Compare(c1.Title, c2.Title)
	case "price":
		switch {
		case c1.Price < c2.Price:
			return -1
		case c1.Price > c2.Price:
			return 1
		}
		return 0
	case "is_published":
		return compareBools(c1.IsPublished, c2.IsPublished)
	case "created_at":
		return c1.CreatedAt.Compare(c2.CreatedAt)
	case "updated_at":
		return c1.UpdatedAt.Compare(c2.UpdatedAt)
	}
	return 0
}

func (repo *courseRepository) GetCourse(_ context.Context, id string) (course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if c, ok := repo.db.courses[id]; ok {
		return *c, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) GetOutline(_ context.Context, id string) (course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	c, ok := repo.db.courses[id]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	outline := *c
	outline.Sections = nil

	lessons := make(map[string][]course.Lesson)
	contents := make(map[string][]course.Content)
	for _, cnt := range repo.db.contents {
		cp := *cnt
		cp.Choices = append([]course.Choice(nil), cnt.Choices...)
		contents[cnt.LessonID] = append(contents[cnt.LessonID], cp)
	}
	for _, les := range repo.db.lessons {
		cp := *les
		cp.Contents = contents[les.ID]
		lessons[les.SectionID] = append(lessons[les.SectionID], cp)
	}
	for _, sec := range repo.db.sections {
		if sec.CourseID != id {
			continue
		}
		cp := *sec
		cp.Lessons = lessons[sec.ID]
		outline.Sections = append(outline.Sections, cp)
	}
	outline.Sort()
	return outline, nil
}

func (repo *courseRepository) UpdateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.courses[c.ID]; !ok {
		return course.Course{}, course.ErrNotFound
	}
	c.Sections = nil
	repo.db.courses[c.ID] = &c
	return c, nil
}

func (repo *courseRepository) DeleteCourse(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.courses[id]; !ok {
		return course.ErrNotFound
	}
	for _, sec := range repo.db.sections {
		if sec.CourseID == id {
			repo.deleteSection(sec.ID)
		}
	}
	for key := range repo.db.enrollments {
		if key.courseID == id {
			delete(repo.db.enrollments, key)
		}
	}
	for key, rec := range repo.db.progress {
		if rec.CourseID == id {
			delete(repo.db.progress, key)
		}
	}
	delete(repo.db.courses, id)
	return nil
}

// tree

func (repo *courseRepository) CreateSection(_ context.Context, sec course.Section) (course.Section, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.courses[sec.CourseID]; !ok {
		return course.Section{}, course.ErrNotFound
	}
	sec.ID = uuid.New().String()
	sec.Lessons = nil
	repo.db.sections[sec.ID] = &sec
	return sec, nil
}

func (repo *courseRepository) UpdateSection(_ context.Context, sec course.Section) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.sections[sec.ID]
	if !ok {
		return course.ErrNotFound
	}
	orig.Title = sec.Title
	return nil
}

func (repo *courseRepository) CreateLesson(_ context.Context, les course.Lesson) (course.Lesson, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.sections[les.SectionID]; !ok {
		return course.Lesson{}, course.ErrNotFound
	}
	les.ID = uuid.New().String()
	les.Contents = nil
	repo.db.lessons[les.ID] = &les
	return les, nil
}

func (repo *courseRepository) UpdateLesson(_ context.Context, les course.Lesson) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.lessons[les.ID]
	if !ok {
		return course.ErrNotFound
	}
	orig.Title = les.Title
	orig.Body = les.Body
	return nil
}

func (repo *courseRepository) CreateContent(_ context.Context, cnt course.Content) (course.Content, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.lessons[cnt.LessonID]; !ok {
		return course.Content{}, course.ErrNotFound
	}
	cnt.ID = uuid.New().String()
	repo.db.contents[cnt.ID] = &cnt
	return cnt, nil
}

func (repo *courseRepository) UpdateContent(_ context.Context, cnt course.Content) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.contents[cnt.ID]
	if !ok {
		return course.ErrNotFound
	}
	orig.Body = cnt.Body
	orig.Choices = append([]course.Choice(nil), cnt.Choices...)
	return nil
}

func (repo *courseRepository) FindItemCourse(_ context.Context, kind course.ItemKind, id string) (string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.findItemCourse(kind, id)
}

func (repo *courseRepository) findItemCourse(kind course.ItemKind, id string) (string, error) {
	switch kind {
	case course.KindCourse:
		if _, ok := repo.db.courses[id]; ok {
			return id, nil
		}
	case course.KindSection:
		if sec, ok := repo.db.sections[id]; ok {
			return sec.CourseID, nil
		}
	case course.KindLesson:
		if les, ok := repo.db.lessons[id]; ok {
			return repo.findItemCourse(course.KindSection, les.SectionID)
		}
	case course.KindContent:
		if cnt, ok := repo.db.contents[id]; ok {
			return repo.findItemCourse(course.KindLesson, cnt.LessonID)
		}
	default:
		return "", course.ErrInvalidKind
	}
	return "", course.ErrNotFound
}

func (repo *courseRepository) DeleteItem(_ context.Context, kind course.ItemKind, id string, renumbered []course.Placement) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := repo.checkPlacements(renumbered); err != nil {
		return err
	}
	switch kind {
	case course.KindSection:
		if _, ok := repo.db.sections[id]; !ok {
			return course.ErrNotFound
		}
		repo.deleteSection(id)
	case course.KindLesson:
		if _, ok := repo.db.lessons[id]; !ok {
			return course.ErrNotFound
		}
		repo.deleteLesson(id)
	case course.KindContent:
		if _, ok := repo.db.contents[id]; !ok {
			return course.ErrNotFound
		}
		delete(repo.db.contents, id)
	default:
		return course.ErrInvalidKind
	}
	repo.applyPlacements(renumbered)
	return nil
}

func (repo *courseRepository) deleteSection(id string) {
	for _, les := range repo.db.lessons {
		if les.SectionID == id {
			repo.deleteLesson(les.ID)
		}
	}
	delete(repo.db.sections, id)
}

func (repo *courseRepository) deleteLesson(id string) {
	for _, cnt := range repo.db.contents {
		if cnt.LessonID == id {
			delete(repo.db.contents, cnt.ID)
		}
	}
	delete(repo.db.lessons, id)
}

func (repo *courseRepository) EditTree(ctx context.Context, courseID string, edit func(repo course.Repository, c course.Course) error) error {
	repo.db.treeMu.Lock()
	defer repo.db.treeMu.Unlock()

	c, err := repo.GetOutline(ctx, courseID)
	if err != nil {
		return err
	}
	return edit(repo, c)
}

func (repo *courseRepository) ApplyPlacements(_ context.Context, placements []course.Placement) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	// all or nothing
	if err := repo.checkPlacements(placements); err != nil {
		return err
	}
	repo.applyPlacements(placements)
	return nil
}

func (repo *courseRepository) checkPlacements(placements []course.Placement) error {
	for _, p := range placements {
		var ok bool
		switch p.Kind {
		case course.KindSection:
			_, ok = repo.db.sections[p.ID]
		case course.KindLesson:
			_, ok = repo.db.lessons[p.ID]
		case course.KindContent:
			_, ok = repo.db.contents[p.ID]
		default:
			return course.ErrInvalidKind
		}
		if !ok {
			return course.ErrNotFound
		}
	}
	return nil
}

func (repo *courseRepository) applyPlacements(placements []course.Placement) {
	for _, p := range placements {
		switch p.Kind {
		case course.KindSection:
			sec := repo.db.sections[p.ID]
			sec.CourseID, sec.Index = p.ParentID, p.Index
		case course.KindLesson:
			les := repo.db.lessons[p.ID]
			les.SectionID, les.Index = p.ParentID, p.Index
		case course.KindContent:
			cnt := repo.db.contents[p.ID]
			cnt.LessonID, cnt.Index = p.ParentID, p.Index
		}
	}
}

// enrollments

func (repo *courseRepository) GetEnrollment(_ context.Context, userID, courseID string) (course.Enrollment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if enr, ok := repo.db.enrollments[enrollmentKey{userID, courseID}]; ok {
		return enr, nil
	}
	return course.Enrollment{}, course.ErrNotFound
}

func (repo *courseRepository) CreateEnrollment(_ context.Context, enr course.Enrollment) (course.Enrollment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.courses[enr.CourseID]; !ok {
		return course.Enrollment{}, course.ErrNotFound
	}
	repo.db.enrollments[enrollmentKey{enr.UserID, enr.CourseID}] = enr
	return enr, nil
}

// progress

func (repo *courseRepository) QueryProgress(_ context.Context, userID, courseID string) ([]course.Progress, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	records := make([]course.Progress, 0)
	for _, rec := range repo.db.progress {
		if rec.UserID == userID && rec.CourseID == courseID {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].StartedAt.Before(records[j].StartedAt) })
	return records, nil
}

func (repo *courseRepository) SaveProgress(_ context.Context, records ...course.Progress) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, rec := range records {
		repo.db.progress[progressKey{rec.UserID, rec.ItemKind, rec.ItemID}] = rec
	}
	return nil
}

func (repo *courseRepository) DeleteProgress(_ context.Context, userID, courseID string) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var cnt int
	for key, rec := range repo.db.progress {
		if rec.UserID == userID && rec.CourseID == courseID {
			delete(repo.db.progress, key)
			cnt++
		}
	}
	return cnt, nil
}
