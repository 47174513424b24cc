package eventsvc

import (
	"context"
	"fmt"

	"github.com/trezcool/academy/core"
	"github.com/trezcool/academy/core/course"
)

// LogPublisher logs progress events when no broker is configured.
type LogPublisher struct {
	logger core.Logger
}

var _ course.EventPublisher = (*LogPublisher)(nil) // interface compliance check

func NewLogPublisher(logger core.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, events ...course.Event) error {
	for _, e := range events {
		p.logger.Debug(fmt.Sprintf("event %s: user=%s course=%s item=%s:%s", e.Type, e.UserID, e.CourseID, e.ItemKind, e.ItemID))
	}
	return nil
}
