package emailsvc

import (
	"bytes"
	"net/mail"
	"strings"
	"testing"

	"github.com/trezcool/academy/core"
	"github.com/trezcool/academy/tests"
)

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	conf := &core.Config{
		AppName:          "Academy",
		TestMode:         true,
		FrontendBaseURL:  "http://academy.test",
		DefaultFromEmail: mail.Address{Name: "Academy", Address: "noreply@academy.test"},
	}
	logger := testutil.Logger{T: t}
	core.ParseEmailTemplates(conf, logger)
	ResetSentMessages()

	svc := NewConsoleServiceMock(conf, logger)
	withAttachment := &core.EmailMessage{
		To:      []mail.Address{{Address: "ann@test.cd"}},
		Subject: "Report",
		BodyStr: "see attached",
	}
	if err := withAttachment.Attach(bytes.NewBufferString("a,b\n1,2\n"), "report.csv", "text/csv"); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	svc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: "Ann", Address: "ann@test.cd"}},
			Subject:      "Course Completed",
			TemplateName: "course_completed",
			TemplateData: map[string]string{"Name": "Ann", "CourseTitle": "Go 101", "CourseID": "c-1"},
		},
		&core.EmailMessage{Subject: "no recipients", BodyStr: "lost"},
		withAttachment,
	)

	sent := SentMessages()
	if len(sent) != 2 {
		t.Fatalf("len(SentMessages()) = %d; want 2", len(sent))
	}
	if !strings.Contains(sent[0].TextContent, "Go 101") {
		t.Errorf("TextContent = %q; want course title", sent[0].TextContent)
	}
	if !strings.Contains(sent[0].HTMLContent, "http://academy.test/courses/c-1") {
		t.Errorf("HTMLContent = %q; want course link", sent[0].HTMLContent)
	}
	if sent[1].TextContent != "see attached" || !sent[1].HasAttachments() {
		t.Errorf("sent[1] = %+v; want body & attachment", sent[1])
	}
}
