package course

type ItemRef struct {
	Kind ItemKind `json:"kind"`
	ID   string   `json:"id"`
}

type (
	ContentReading struct {
		ID       string      `json:"id"`
		Kind     ContentKind `json:"kind"`
		Body     string      `json:"body"`
		Index    int         `json:"index"`
		Choices  []Choice    `json:"choices,omitempty"`
		Status   Status      `json:"status"`
		Progress int         `json:"progress"`
	}

	LessonReading struct {
		ID       string           `json:"id"`
		Title    string           `json:"title"`
		Body     string           `json:"body"`
		Index    int              `json:"index"`
		Status   Status           `json:"status"`
		Progress int              `json:"progress"`
		Contents []ContentReading `json:"contents"`
	}

	SectionReading struct {
		ID       string          `json:"id"`
		Title    string          `json:"title"`
		Index    int             `json:"index"`
		Status   Status          `json:"status"`
		Progress int             `json:"progress"`
		Lessons  []LessonReading `json:"lessons"`
	}

	// Reading is a course tree annotated with the progress of one user.
	Reading struct {
		CourseID  string           `json:"course_id"`
		Title     string           `json:"title"`
		Status    Status           `json:"status"`
		Progress  int              `json:"progress"` // % of completed leaves
		Completed int              `json:"completed"`
		Total     int              `json:"total"`
		Next      *ItemRef         `json:"next"` // first leaf not completed yet
		Sections  []SectionReading `json:"sections"`

		statuses map[ItemRef]Status
	}
)

// StatusOf returns the status of a section, lesson or content of the reading.
func (r Reading) StatusOf(k ItemKind, id string) (Status, bool) {
	st, ok := r.statuses[ItemRef{Kind: k, ID: id}]
	return st, ok
}

// IsNext reports whether the item is the leaf the user has to go through next.
func (r Reading) IsNext(k ItemKind, id string) bool {
	return r.Next != nil && r.Next.Kind == k && r.Next.ID == id
}

// rollup walks the tree in document order. Leaves are contents & lessons without contents.
// The first leaf not completed is the only one started; every leaf after it is locked
// unless it was completed before (completions are permanent).
type rollup struct {
	done     map[ItemRef]bool
	next     *ItemRef
	statuses map[ItemRef]Status
}

// Rollup computes the status & progress of every node of the course tree c for the user
// owning records. c must be sorted.
func Rollup(c Course, records []Progress) Reading {
	r := rollup{
		done:     make(map[ItemRef]bool, len(records)),
		statuses: make(map[ItemRef]Status),
	}
	for _, rec := range records {
		if rec.Status == StatusCompleted {
			r.done[ItemRef{Kind: rec.ItemKind, ID: rec.ItemID}] = true
		}
	}

	rd := Reading{
		CourseID: c.ID,
		Title:    c.Title,
		Sections: make([]SectionReading, 0, len(c.Sections)),
	}
	for _, sec := range c.Sections {
		sr, total, completed := r.section(sec)
		rd.Sections = append(rd.Sections, sr)
		rd.Total += total
		rd.Completed += completed
	}
	rd.Status, rd.Progress = r.container(false, rd.Total, rd.Completed)
	rd.Next = r.next
	rd.statuses = r.statuses
	return rd
}

func (r *rollup) section(sec Section) (SectionReading, int, int) {
	sr := SectionReading{
		ID:      sec.ID,
		Title:   sec.Title,
		Index:   sec.Index,
		Lessons: make([]LessonReading, 0, len(sec.Lessons)),
	}
	var total, completed int
	before := r.next != nil
	for _, les := range sec.Lessons {
		lr, t, c := r.lesson(les)
		sr.Lessons = append(sr.Lessons, lr)
		total += t
		completed += c
	}
	sr.Status, sr.Progress = r.container(before, total, completed)
	r.statuses[ItemRef{Kind: KindSection, ID: sec.ID}] = sr.Status
	return sr, total, completed
}

func (r *rollup) lesson(les Lesson) (LessonReading, int, int) {
	lr := LessonReading{
		ID:       les.ID,
		Title:    les.Title,
		Body:     les.Body,
		Index:    les.Index,
		Contents: make([]ContentReading, 0, len(les.Contents)),
	}
	ref := ItemRef{Kind: KindLesson, ID: les.ID}

	if len(les.Contents) == 0 {
		lr.Status = r.leaf(ref)
		r.statuses[ref] = lr.Status
		if lr.Status == StatusCompleted {
			lr.Progress = 100
			return lr, 1, 1
		}
		return lr, 1, 0
	}

	var completed int
	before := r.next != nil
	for _, cnt := range les.Contents {
		cr := ContentReading{
			ID:      cnt.ID,
			Kind:    cnt.Kind,
			Body:    cnt.Body,
			Index:   cnt.Index,
			Choices: hideAnswers(cnt.Choices),
			Status:  r.leaf(ItemRef{Kind: KindContent, ID: cnt.ID}),
		}
		if cr.Status == StatusCompleted {
			cr.Progress = 100
			completed++
		}
		r.statuses[ItemRef{Kind: KindContent, ID: cnt.ID}] = cr.Status
		lr.Contents = append(lr.Contents, cr)
	}
	lr.Status, lr.Progress = r.container(before, len(les.Contents), completed)
	r.statuses[ref] = lr.Status
	return lr, len(les.Contents), completed
}

func (r *rollup) leaf(ref ItemRef) Status {
	if r.done[ref] {
		return StatusCompleted
	}
	if r.next == nil {
		r.next = &ref
		return StatusStarted
	}
	return StatusLocked
}

// container derives the status & progress of a container from its leaves.
// before tells whether the next leaf had already been found when the container was entered.
func (r *rollup) container(before bool, total, completed int) (Status, int) {
	switch {
	case total == 0:
		if before {
			return StatusLocked, 0
		}
		return StatusCompleted, 100
	case completed == total:
		return StatusCompleted, 100
	case !before && r.next != nil:
		return StatusStarted, completed * 100 / total
	default:
		return StatusLocked, completed * 100 / total
	}
}
