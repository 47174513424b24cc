package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/types"

	"github.com/trezcool/academy/core"
	"github.com/trezcool/academy/core/course"
)

type (
	courseRow struct {
		ID          string      `db:"id"`
		Title       string      `db:"title"`
		Description string      `db:"description"`
		Price       int64       `db:"price"`
		IsPublished bool        `db:"is_published"`
		AuthorID    null.String `db:"author_id"`
		CreatedAt   time.Time   `db:"created_at"`
		UpdatedAt   time.Time   `db:"updated_at"`
	}

	sectionRow struct {
		ID       string `db:"id"`
		CourseID string `db:"course_id"`
		Title    string `db:"title"`
		Index    int    `db:"idx"`
	}

	lessonRow struct {
		ID        string `db:"id"`
		SectionID string `db:"section_id"`
		Title     string `db:"title"`
		Body      string `db:"body"`
		Index     int    `db:"idx"`
	}

	contentRow struct {
		ID       string     `db:"id"`
		LessonID string     `db:"lesson_id"`
		Kind     string     `db:"kind"`
		Body     string     `db:"body"`
		Choices  types.JSON `db:"choices"`
		Index    int        `db:"idx"`
	}

	enrollmentRow struct {
		UserID    string      `db:"user_id"`
		CourseID  string      `db:"course_id"`
		GrantedBy null.String `db:"granted_by"`
		CreatedAt time.Time   `db:"created_at"`
	}

	progressRow struct {
		UserID      string    `db:"user_id"`
		CourseID    string    `db:"course_id"`
		ItemKind    string    `db:"item_kind"`
		ItemID      string    `db:"item_id"`
		Status      string    `db:"status"`
		StartedAt   time.Time `db:"started_at"`
		CompletedAt null.Time `db:"completed_at"`
	}
)

func (row courseRow) course() course.Course {
	return course.Course{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		Price:       row.Price,
		IsPublished: row.IsPublished,
		AuthorID:    row.AuthorID.String,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

func (row contentRow) content() (course.Content, error) {
	cnt := course.Content{
		ID:       row.ID,
		LessonID: row.LessonID,
		Kind:     course.ContentKind(row.Kind),
		Body:     row.Body,
		Index:    row.Index,
	}
	if len(row.Choices) > 0 {
		if err := row.Choices.Unmarshal(&cnt.Choices); err != nil {
			return course.Content{}, errors.Wrapf(err, "decoding choices of content %s", row.ID)
		}
	}
	if len(cnt.Choices) == 0 {
		cnt.Choices = nil
	}
	return cnt, nil
}

func marshalChoices(choices []course.Choice) (types.JSON, error) {
	if choices == nil {
		choices = []course.Choice{}
	}
	var js types.JSON
	if err := js.Marshal(choices); err != nil {
		return nil, errors.Wrap(err, "encoding choices")
	}
	return js, nil
}

func (row progressRow) progress() course.Progress {
	rec := course.Progress{
		UserID:    row.UserID,
		CourseID:  row.CourseID,
		ItemKind:  course.ItemKind(row.ItemKind),
		ItemID:    row.ItemID,
		Status:    course.Status(row.Status),
		StartedAt: row.StartedAt.UTC(),
	}
	if row.CompletedAt.Valid {
		rec.CompletedAt = row.CompletedAt.Time.UTC()
	}
	return rec
}

// queryer is implemented by both *sqlx.DB & *sqlx.Tx.
type queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

type courseRepository struct {
	db *sqlx.DB
	q  queryer // db, or the transaction of an EditTree
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) course.Repository {
	return &courseRepository{db: db, q: db}
}

// isID reports whether id may be looked up; malformed IDs never match a row.
func isID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// trapNoRowsErr maps psql "no rows" err to course.ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return course.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// expectRows returns course.ErrNotFound when the statement touched no row.
func expectRows(res sql.Result, err error, msg string) error {
	if err != nil {
		return errors.Wrap(err, msg)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if n == 0 {
		return course.ErrNotFound
	}
	return nil
}

// inTx runs fn in a transaction, rolled back when fn fails.
// A repository bound to a transaction runs fn in it.
func (repo *courseRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	if tx, ok := repo.q.(*sqlx.Tx); ok {
		return fn(tx)
	}
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "starting transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// courses

const courseColumns = `id, title, description, price, is_published, author_id, created_at, updated_at`

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	row := courseRow{
		ID:          uuid.New().String(),
		Title:       c.Title,
		Description: c.Description,
		Price:       c.Price,
		IsPublished: c.IsPublished,
		AuthorID:    null.NewString(c.AuthorID, c.AuthorID != ""),
		CreatedAt:   c.CreatedAt.UTC(),
		UpdatedAt:   c.UpdatedAt.UTC(),
	}
	q := `INSERT INTO course (` + courseColumns + `)
		VALUES (:id, :title, :description, :price, :is_published, :author_id, :created_at, :updated_at)`
	if _, err := repo.q.NamedExecContext(ctx, q, row); err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return row.course(), nil
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering) ([]course.Course, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			conds = append(conds, "(title ILIKE ? OR description ILIKE ?)")
			args = append(args, val, val)
		}
		if filter.IsPublished != nil {
			conds = append(conds, "is_published = ?")
			args = append(args, *filter.IsPublished)
		}
		if filter.AuthorID != "" {
			if !isID(filter.AuthorID) {
				return []course.Course{}, nil
			}
			conds = append(conds, "author_id = ?")
			args = append(args, filter.AuthorID)
		}
	}

	q := `SELECT ` + courseColumns + ` FROM course`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	orderList := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		orderList = append(orderList, ord.String())
	}
	orderList = append(orderList, "created_at ASC")
	q += ` ORDER BY ` + strings.Join(orderList, ", ")

	var rows []courseRow
	if err := repo.q.SelectContext(ctx, &rows, repo.q.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.course())
	}
	return courses, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	if !isID(id) {
		return course.Course{}, course.ErrNotFound
	}
	var row courseRow
	if err := repo.q.GetContext(ctx, &row, `SELECT `+courseColumns+` FROM course WHERE id = $1`, id); err != nil {
		return course.Course{}, trapNoRowsErr(err, "getting course")
	}
	return row.course(), nil
}

func (repo *courseRepository) GetOutline(ctx context.Context, id string) (course.Course, error) {
	c, err := repo.GetCourse(ctx, id)
	if err != nil {
		return course.Course{}, err
	}

	var (
		sections []sectionRow
		lessons  []lessonRow
		contents []contentRow
	)
	if err := repo.q.SelectContext(ctx, &sections,
		`SELECT id, course_id, title, idx FROM section WHERE course_id = $1 ORDER BY idx`, id); err != nil {
		return course.Course{}, errors.Wrap(err, "querying sections")
	}
	if err := repo.q.SelectContext(ctx, &lessons,
		`SELECT l.id, l.section_id, l.title, l.body, l.idx FROM lesson l
		JOIN section s ON s.id = l.section_id
		WHERE s.course_id = $1 ORDER BY l.idx`, id); err != nil {
		return course.Course{}, errors.Wrap(err, "querying lessons")
	}
	if err := repo.q.SelectContext(ctx, &contents,
		`SELECT c.id, c.lesson_id, c.kind, c.body, c.choices, c.idx FROM content c
		JOIN lesson l ON l.id = c.lesson_id
		JOIN section s ON s.id = l.section_id
		WHERE s.course_id = $1 ORDER BY c.idx`, id); err != nil {
		return course.Course{}, errors.Wrap(err, "querying contents")
	}

	byLesson := make(map[string][]course.Content)
	for _, row := range contents {
		cnt, err := row.content()
		if err != nil {
			return course.Course{}, err
		}
		byLesson[cnt.LessonID] = append(byLesson[cnt.LessonID], cnt)
	}
	bySection := make(map[string][]course.Lesson)
	for _, row := range lessons {
		bySection[row.SectionID] = append(bySection[row.SectionID], course.Lesson{
			ID:        row.ID,
			SectionID: row.SectionID,
			Title:     row.Title,
			Body:      row.Body,
			Index:     row.Index,
			Contents:  byLesson[row.ID],
		})
	}
	for _, row := range sections {
		c.Sections = append(c.Sections, course.Section{
			ID:       row.ID,
			CourseID: row.CourseID,
			Title:    row.Title,
			Index:    row.Index,
			Lessons:  bySection[row.ID],
		})
	}
	c.Sort()
	return c, nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	if !isID(c.ID) {
		return course.Course{}, course.ErrNotFound
	}
	res, err := repo.q.ExecContext(ctx,
		`UPDATE course SET title = $2, description = $3, price = $4, is_published = $5, updated_at = $6 WHERE id = $1`,
		c.ID, c.Title, c.Description, c.Price, c.IsPublished, c.UpdatedAt.UTC(),
	)
	if err := expectRows(res, err, "updating course"); err != nil {
		return course.Course{}, err
	}
	c.Sections = nil
	return c, nil
}

func (repo *courseRepository) DeleteCourse(ctx context.Context, id string) error {
	if !isID(id) {
		return course.ErrNotFound
	}
	// sections, lessons, contents, enrollments & progress cascade
	res, err := repo.q.ExecContext(ctx, `DELETE FROM course WHERE id = $1`, id)
	return expectRows(res, err, "deleting course")
}

// tree

func (repo *courseRepository) CreateSection(ctx context.Context, sec course.Section) (course.Section, error) {
	if !isID(sec.CourseID) {
		return course.Section{}, course.ErrNotFound
	}
	sec.ID = uuid.New().String()
	sec.Lessons = nil
	res, err := repo.q.ExecContext(ctx,
		`INSERT INTO section (id, course_id, title, idx) SELECT $1::uuid, id, $3::text, $4::integer FROM course WHERE id = $2`,
		sec.ID, sec.CourseID, sec.Title, sec.Index,
	)
	if err := expectRows(res, err, "inserting section"); err != nil {
		return course.Section{}, err
	}
	return sec, nil
}

func (repo *courseRepository) UpdateSection(ctx context.Context, sec course.Section) error {
	if !isID(sec.ID) {
		return course.ErrNotFound
	}
	res, err := repo.q.ExecContext(ctx, `UPDATE section SET title = $2 WHERE id = $1`, sec.ID, sec.Title)
	return expectRows(res, err, "updating section")
}

func (repo *courseRepository) CreateLesson(ctx context.Context, les course.Lesson) (course.Lesson, error) {
	if !isID(les.SectionID) {
		return course.Lesson{}, course.ErrNotFound
	}
	les.ID = uuid.New().String()
	les.Contents = nil
	res, err := repo.q.ExecContext(ctx,
		`INSERT INTO lesson (id, section_id, title, body, idx) SELECT $1::uuid, id, $3::text, $4::text, $5::integer FROM section WHERE id = $2`,
		les.ID, les.SectionID, les.Title, les.Body, les.Index,
	)
	if err := expectRows(res, err, "inserting lesson"); err != nil {
		return course.Lesson{}, err
	}
	return les, nil
}

func (repo *courseRepository) UpdateLesson(ctx context.Context, les course.Lesson) error {
	if !isID(les.ID) {
		return course.ErrNotFound
	}
	res, err := repo.q.ExecContext(ctx, `UPDATE lesson SET title = $2, body = $3 WHERE id = $1`, les.ID, les.Title, les.Body)
	return expectRows(res, err, "updating lesson")
}

func (repo *courseRepository) CreateContent(ctx context.Context, cnt course.Content) (course.Content, error) {
	if !isID(cnt.LessonID) {
		return course.Content{}, course.ErrNotFound
	}
	choices, err := marshalChoices(cnt.Choices)
	if err != nil {
		return course.Content{}, err
	}
	cnt.ID = uuid.New().String()
	res, err := repo.q.ExecContext(ctx,
		`INSERT INTO content (id, lesson_id, kind, body, choices, idx)
		SELECT $1::uuid, id, $3::text, $4::text, $5::jsonb, $6::integer FROM lesson WHERE id = $2`,
		cnt.ID, cnt.LessonID, string(cnt.Kind), cnt.Body, choices, cnt.Index,
	)
	if err := expectRows(res, err, "inserting content"); err != nil {
		return course.Content{}, err
	}
	return cnt, nil
}

func (repo *courseRepository) UpdateContent(ctx context.Context, cnt course.Content) error {
	if !isID(cnt.ID) {
		return course.ErrNotFound
	}
	choices, err := marshalChoices(cnt.Choices)
	if err != nil {
		return err
	}
	res, err := repo.q.ExecContext(ctx, `UPDATE content SET body = $2, choices = $3 WHERE id = $1`, cnt.ID, cnt.Body, choices)
	return expectRows(res, err, "updating content")
}

// itemCourseQueries select the course_id of an item, by kind.
var itemCourseQueries = map[course.ItemKind]string{
	course.KindCourse:  `SELECT id FROM course WHERE id = $1`,
	course.KindSection: `SELECT course_id FROM section WHERE id = $1`,
	course.KindLesson: `SELECT s.course_id FROM lesson l
		JOIN section s ON s.id = l.section_id WHERE l.id = $1`,
	course.KindContent: `SELECT s.course_id FROM content c
		JOIN lesson l ON l.id = c.lesson_id
		JOIN section s ON s.id = l.section_id WHERE c.id = $1`,
}

func (repo *courseRepository) FindItemCourse(ctx context.Context, kind course.ItemKind, id string) (string, error) {
	q, ok := itemCourseQueries[kind]
	if !ok {
		return "", course.ErrInvalidKind
	}
	if !isID(id) {
		return "", course.ErrNotFound
	}
	var courseID string
	if err := repo.q.GetContext(ctx, &courseID, q, id); err != nil {
		return "", trapNoRowsErr(err, "finding item course")
	}
	return courseID, nil
}

// placementQueries save the container & index of an item, by kind.
var placementQueries = map[course.ItemKind]string{
	course.KindSection: `UPDATE section SET course_id = $2, idx = $3 WHERE id = $1`,
	course.KindLesson:  `UPDATE lesson SET section_id = $2, idx = $3 WHERE id = $1`,
	course.KindContent: `UPDATE content SET lesson_id = $2, idx = $3 WHERE id = $1`,
}

func applyPlacements(ctx context.Context, tx *sqlx.Tx, placements []course.Placement) error {
	for _, p := range placements {
		q, ok := placementQueries[p.Kind]
		if !ok {
			return course.ErrInvalidKind
		}
		if !isID(p.ID) || !isID(p.ParentID) {
			return course.ErrNotFound
		}
		res, err := tx.ExecContext(ctx, q, p.ID, p.ParentID, p.Index)
		if err := expectRows(res, err, "saving "+string(p.Kind)+" placement"); err != nil {
			return err
		}
	}
	return nil
}

// deleteQueries delete an item, by kind; its subtree cascades.
var deleteQueries = map[course.ItemKind]string{
	course.KindSection: `DELETE FROM section WHERE id = $1`,
	course.KindLesson:  `DELETE FROM lesson WHERE id = $1`,
	course.KindContent: `DELETE FROM content WHERE id = $1`,
}

func (repo *courseRepository) DeleteItem(ctx context.Context, kind course.ItemKind, id string, renumbered []course.Placement) error {
	q, ok := deleteQueries[kind]
	if !ok {
		return course.ErrInvalidKind
	}
	if !isID(id) {
		return course.ErrNotFound
	}
	return repo.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, q, id)
		if err := expectRows(res, err, "deleting "+string(kind)); err != nil {
			return err
		}
		return applyPlacements(ctx, tx, renumbered)
	})
}

func (repo *courseRepository) EditTree(ctx context.Context, courseID string, edit func(repo course.Repository, c course.Course) error) error {
	if !isID(courseID) {
		return course.ErrNotFound
	}
	return repo.inTx(ctx, func(tx *sqlx.Tx) error {
		var id string
		if err := tx.GetContext(ctx, &id, `SELECT id FROM course WHERE id = $1 FOR UPDATE`, courseID); err != nil {
			return trapNoRowsErr(err, "locking course")
		}
		txRepo := &courseRepository{db: repo.db, q: tx}
		c, err := txRepo.GetOutline(ctx, courseID)
		if err != nil {
			return err
		}
		return edit(txRepo, c)
	})
}

func (repo *courseRepository) ApplyPlacements(ctx context.Context, placements []course.Placement) error {
	if len(placements) == 0 {
		return nil
	}
	return repo.inTx(ctx, func(tx *sqlx.Tx) error {
		return applyPlacements(ctx, tx, placements)
	})
}

// enrollments

func (repo *courseRepository) GetEnrollment(ctx context.Context, userID, courseID string) (course.Enrollment, error) {
	if !isID(userID) || !isID(courseID) {
		return course.Enrollment{}, course.ErrNotFound
	}
	var row enrollmentRow
	err := repo.q.GetContext(ctx, &row,
		`SELECT user_id, course_id, granted_by, created_at FROM enrollment WHERE user_id = $1 AND course_id = $2`,
		userID, courseID,
	)
	if err != nil {
		return course.Enrollment{}, trapNoRowsErr(err, "getting enrollment")
	}
	return course.Enrollment{
		UserID:    row.UserID,
		CourseID:  row.CourseID,
		GrantedBy: row.GrantedBy.String,
		CreatedAt: row.CreatedAt.UTC(),
	}, nil
}

func (repo *courseRepository) CreateEnrollment(ctx context.Context, enr course.Enrollment) (course.Enrollment, error) {
	if !isID(enr.UserID) || !isID(enr.CourseID) {
		return course.Enrollment{}, course.ErrNotFound
	}
	row := enrollmentRow{
		UserID:    enr.UserID,
		CourseID:  enr.CourseID,
		GrantedBy: null.NewString(enr.GrantedBy, enr.GrantedBy != ""),
		CreatedAt: enr.CreatedAt.UTC(),
	}
	q := `INSERT INTO enrollment (user_id, course_id, granted_by, created_at)
		VALUES (:user_id, :course_id, :granted_by, :created_at)
		ON CONFLICT (user_id, course_id) DO UPDATE SET granted_by = EXCLUDED.granted_by`
	if _, err := repo.q.NamedExecContext(ctx, q, row); err != nil {
		return course.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	enr.CreatedAt = row.CreatedAt
	return enr, nil
}

// progress

func (repo *courseRepository) QueryProgress(ctx context.Context, userID, courseID string) ([]course.Progress, error) {
	records := make([]course.Progress, 0)
	if !isID(userID) || !isID(courseID) {
		return records, nil
	}
	var rows []progressRow
	err := repo.q.SelectContext(ctx, &rows,
		`SELECT user_id, course_id, item_kind, item_id, status, started_at, completed_at
		FROM progress WHERE user_id = $1 AND course_id = $2 ORDER BY started_at`,
		userID, courseID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying progress")
	}
	for _, row := range rows {
		records = append(records, row.progress())
	}
	return records, nil
}

func (repo *courseRepository) SaveProgress(ctx context.Context, records ...course.Progress) error {
	if len(records) == 0 {
		return nil
	}
	q := `INSERT INTO progress (user_id, course_id, item_kind, item_id, status, started_at, completed_at)
		VALUES (:user_id, :course_id, :item_kind, :item_id, :status, :started_at, :completed_at)
		ON CONFLICT (user_id, item_kind, item_id) DO UPDATE
		SET course_id = EXCLUDED.course_id, status = EXCLUDED.status,
			started_at = EXCLUDED.started_at, completed_at = EXCLUDED.completed_at`
	return repo.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, rec := range records {
			row := progressRow{
				UserID:      rec.UserID,
				CourseID:    rec.CourseID,
				ItemKind:    string(rec.ItemKind),
				ItemID:      rec.ItemID,
				Status:      string(rec.Status),
				StartedAt:   rec.StartedAt.UTC(),
				CompletedAt: null.NewTime(rec.CompletedAt.UTC(), !rec.CompletedAt.IsZero()),
			}
			if _, err := tx.NamedExecContext(ctx, q, row); err != nil {
				return errors.Wrap(err, "saving progress")
			}
		}
		return nil
	})
}

func (repo *courseRepository) DeleteProgress(ctx context.Context, userID, courseID string) (int, error) {
	if !isID(userID) || !isID(courseID) {
		return 0, nil
	}
	res, err := repo.q.ExecContext(ctx, `DELETE FROM progress WHERE user_id = $1 AND course_id = $2`, userID, courseID)
	if err != nil {
		return 0, errors.Wrap(err, "deleting progress")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting progress")
	}
	return int(n), nil
}
