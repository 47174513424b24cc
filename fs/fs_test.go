package appfs

import (
	"io/fs"
	"testing"
)

func TestFS(t *testing.T) {
	files := []string{
		"assets/templates/email/_base.txt",
		"assets/templates/email/_base.gohtml",
		"assets/templates/email/course_completed.txt",
		"assets/templates/email/password_reset.gohtml",
		"migrations/00001_create_users.sql",
	}
	for _, name := range files {
		if _, err := fs.Stat(FS, name); err != nil {
			t.Errorf("fs.Stat(%q) error = %v", name, err)
		}
	}
}
