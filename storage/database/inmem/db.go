package inmemdb

import (
	"sync"

	"github.com/trezcool/academy/core/course"
	"github.com/trezcool/academy/core/user"
)

type progressKey struct {
	userID string
	kind   course.ItemKind
	itemID string
}

type enrollmentKey struct {
	userID   string
	courseID string
}

// DB keeps every table in memory. A single lock guards the course tables so that
// multi-table writes are atomic.
type DB struct {
	users struct {
		sync.RWMutex
		table map[string]*user.User
	}

	// treeMu serializes the course tree edits.
	treeMu sync.Mutex

	mu          sync.RWMutex
	courses     map[string]*course.Course
	sections    map[string]*course.Section
	lessons     map[string]*course.Lesson
	contents    map[string]*course.Content
	enrollments map[enrollmentKey]course.Enrollment
	progress    map[progressKey]course.Progress
}

func Open() *DB {
	db := new(DB)
	db.Reset()
	return db
}

// Reset empties every table.
func (db *DB) Reset() {
	db.users.Lock()
	db.users.table = make(map[string]*user.User)
	db.users.Unlock()

	db.mu.Lock()
	db.courses = make(map[string]*course.Course)
	db.sections = make(map[string]*course.Section)
	db.lessons = make(map[string]*course.Lesson)
	db.contents = make(map[string]*course.Content)
	db.enrollments = make(map[enrollmentKey]course.Enrollment)
	db.progress = make(map[progressKey]course.Progress)
	db.mu.Unlock()
}
