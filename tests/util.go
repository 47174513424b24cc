package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/trezcool/academy/core"
	"github.com/trezcool/academy/core/course"
	"github.com/trezcool/academy/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateCourse(t *testing.T, repo course.Repository, author user.User, title string, price int64, published bool) course.Course {
	now := time.Now().UTC()
	c, err := repo.CreateCourse(context.Background(), course.Course{
		Title:       title,
		Price:       price,
		IsPublished: published,
		AuthorID:    author.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return c
}

// Tree lists the items of a course created by CreateTree, by label.
type Tree map[string]string

// CreateTree fills a course with the outline:
//
//	s1: l1 (c1 explanation, c2 question: c2ok correct / c2ko wrong), l2 (no contents)
//	s2: l3 (c3 explanation)
func CreateTree(t *testing.T, repo course.Repository, courseID string) Tree {
	ctx := context.Background()
	tree := make(Tree)
	fail := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("CreateTree() failed: %v", err)
		}
	}

	s1, err := repo.CreateSection(ctx, course.Section{CourseID: courseID, Title: "Basics", Index: 0})
	fail(err)
	s2, err := repo.CreateSection(ctx, course.Section{CourseID: courseID, Title: "Advanced", Index: 1})
	fail(err)
	l1, err := repo.CreateLesson(ctx, course.Lesson{SectionID: s1.ID, Title: "Variables", Index: 0})
	fail(err)
	l2, err := repo.CreateLesson(ctx, course.Lesson{SectionID: s1.ID, Title: "Recap", Body: "Well done", Index: 1})
	fail(err)
	l3, err := repo.CreateLesson(ctx, course.Lesson{SectionID: s2.ID, Title: "Channels", Index: 0})
	fail(err)
	c1, err := repo.CreateContent(ctx, course.Content{LessonID: l1.ID, Kind: course.ContentExplanation, Body: "var x int", Index: 0})
	fail(err)
	c2, err := repo.CreateContent(ctx, course.Content{
		LessonID: l1.ID,
		Kind:     course.ContentQuestion,
		Body:     "zero value of int?",
		Index:    1,
		Choices: []course.Choice{
			{ID: fmt.Sprintf("%s-ok", l1.ID), Text: "0", IsCorrect: true},
			{ID: fmt.Sprintf("%s-ko", l1.ID), Text: "nil"},
		},
	})
	fail(err)
	c3, err := repo.CreateContent(ctx, course.Content{LessonID: l3.ID, Kind: course.ContentExplanation, Body: "make(chan int)", Index: 0})
	fail(err)

	tree["s1"], tree["s2"] = s1.ID, s2.ID
	tree["l1"], tree["l2"], tree["l3"] = l1.ID, l2.ID, l3.ID
	tree["c1"], tree["c2"], tree["c3"] = c1.ID, c2.ID, c3.ID
	tree["c2ok"], tree["c2ko"] = c2.Choices[0].ID, c2.Choices[1].ID
	return tree
}

// Logger is a core.Logger writing to the test log.
type Logger struct {
	T testing.TB
}

var _ core.Logger = Logger{}

func (l Logger) log(level, msg string, args []interface{}) {
	l.T.Helper()
	l.T.Logf("%s: %s %v", level, msg, args)
}

func (l Logger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args) }
func (l Logger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l Logger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }
func (l Logger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args) }
func (l Logger) Fatal(msg string, args ...interface{}) {
	l.T.Helper()
	l.T.Fatalf("FATAL: %s %v", msg, args)
}
