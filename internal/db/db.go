package db

import (
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/docunest/docunest/internal/docs"
)

// Connect opens the record store. A DSN containing "@tcp(" is treated as
// MySQL; anything else (file paths, "file:", ":memory:") goes through the
// pure-Go sqlite driver so local runs and tests need no external database.
func Connect(dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if strings.Contains(dsn, "@tcp(") {
		dialector = mysql.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := gdb.AutoMigrate(&docs.Document{}, &docs.IngestJob{}, &docs.ChatMessage{}); err != nil {
		return nil, err
	}
	return gdb, nil
}
