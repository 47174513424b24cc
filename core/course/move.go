package course

import "slices"

// NextIndex returns the index of an item of kind k appended to the container parentID.
func (c *Course) NextIndex(k ItemKind, parentID string) (int, error) {
	switch k {
	case KindSection:
		if parentID != c.ID {
			return 0, ErrNotFound
		}
		return len(c.Sections), nil
	case KindLesson:
		sec, _ := c.section(parentID)
		if sec == nil {
			return 0, ErrNotFound
		}
		return len(sec.Lessons), nil
	case KindContent:
		les, _, _ := c.lesson(parentID)
		if les == nil {
			return 0, ErrNotFound
		}
		return len(les.Contents), nil
	}
	return 0, ErrInvalidKind
}

// Move takes the item of kind k out of its container & inserts it at index in the container
// parentID (the same container when parentID is empty). index is clamped to [0, len(container)].
// The tree is updated in place; the returned placements cover every item of the source and
// target containers, renumbered from 0.
func (c *Course) Move(k ItemKind, id, parentID string, index int) ([]Placement, error) {
	switch k {
	case KindSection:
		return c.moveSection(id, parentID, index)
	case KindLesson:
		return c.moveLesson(id, parentID, index)
	case KindContent:
		return c.moveContent(id, parentID, index)
	}
	return nil, ErrInvalidKind
}

func (c *Course) moveSection(id, parentID string, index int) ([]Placement, error) {
	if parentID != "" && parentID != c.ID {
		return nil, ErrNotFound
	}
	sec, pos := c.section(id)
	if sec == nil {
		return nil, ErrNotFound
	}
	moved := *sec

	c.Sections = slices.Delete(c.Sections, pos, pos+1)
	c.Sections = slices.Insert(c.Sections, clamp(index, len(c.Sections)), moved)
	return c.renumberSections(), nil
}

func (c *Course) moveLesson(id, parentID string, index int) ([]Placement, error) {
	les, src, pos := c.lesson(id)
	if les == nil {
		return nil, ErrNotFound
	}
	target := src
	if parentID != "" && parentID != src.ID {
		if target, _ = c.section(parentID); target == nil {
			return nil, ErrNotFound
		}
	}
	moved := *les
	moved.SectionID = target.ID

	src.Lessons = slices.Delete(src.Lessons, pos, pos+1)
	target.Lessons = slices.Insert(target.Lessons, clamp(index, len(target.Lessons)), moved)

	placements := renumberLessons(src)
	if target != src {
		placements = append(placements, renumberLessons(target)...)
	}
	return placements, nil
}

func (c *Course) moveContent(id, parentID string, index int) ([]Placement, error) {
	cnt, src, pos := c.content(id)
	if cnt == nil {
		return nil, ErrNotFound
	}
	target := src
	if parentID != "" && parentID != src.ID {
		if target, _, _ = c.lesson(parentID); target == nil {
			return nil, ErrNotFound
		}
	}
	moved := *cnt
	moved.LessonID = target.ID

	src.Contents = slices.Delete(src.Contents, pos, pos+1)
	target.Contents = slices.Insert(target.Contents, clamp(index, len(target.Contents)), moved)

	placements := renumberContents(src)
	if target != src {
		placements = append(placements, renumberContents(target)...)
	}
	return placements, nil
}

// Remove takes the item of kind k out of the tree & renumbers its former siblings.
func (c *Course) Remove(k ItemKind, id string) ([]Placement, error) {
	switch k {
	case KindSection:
		sec, pos := c.section(id)
		if sec == nil {
			return nil, ErrNotFound
		}
		c.Sections = slices.Delete(c.Sections, pos, pos+1)
		return c.renumberSections(), nil
	case KindLesson:
		les, sec, pos := c.lesson(id)
		if les == nil {
			return nil, ErrNotFound
		}
		sec.Lessons = slices.Delete(sec.Lessons, pos, pos+1)
		return renumberLessons(sec), nil
	case KindContent:
		cnt, les, pos := c.content(id)
		if cnt == nil {
			return nil, ErrNotFound
		}
		les.Contents = slices.Delete(les.Contents, pos, pos+1)
		return renumberContents(les), nil
	}
	return nil, ErrInvalidKind
}

func (c *Course) renumberSections() []Placement {
	placements := make([]Placement, 0, len(c.Sections))
	for i := range c.Sections {
		c.Sections[i].Index = i
		placements = append(placements, Placement{Kind: KindSection, ID: c.Sections[i].ID, ParentID: c.ID, Index: i})
	}
	return placements
}

func renumberLessons(sec *Section) []Placement {
	placements := make([]Placement, 0, len(sec.Lessons))
	for i := range sec.Lessons {
		sec.Lessons[i].Index = i
		placements = append(placements, Placement{Kind: KindLesson, ID: sec.Lessons[i].ID, ParentID: sec.ID, Index: i})
	}
	return placements
}

func renumberContents(les *Lesson) []Placement {
	placements := make([]Placement, 0, len(les.Contents))
	for i := range les.Contents {
		les.Contents[i].Index = i
		placements = append(placements, Placement{Kind: KindContent, ID: les.Contents[i].ID, ParentID: les.ID, Index: i})
	}
	return placements
}

func clamp(index, n int) int {
	if index < 0 {
		return 0
	}
	if index > n {
		return n
	}
	return index
}
