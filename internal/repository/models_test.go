package repository

import (
	"sync"
	"testing"

	"gorm.io/gorm/schema"
)

// MySQL reserves READ, and the raw where clauses in MarkAllRead bypass
// GORM's identifier quoting, so the read flag must map to a safe column.
func TestMessageReadFlagColumnName(t *testing.T) {
	s, err := schema.Parse(&MessageModel{}, &sync.Map{}, schema.NamingStrategy{})
	if err != nil {
		t.Fatalf("parse schema: %v", err)
	}

	field := s.LookUpField("Read")
	if field == nil {
		t.Fatal("Read field not found on MessageModel")
	}
	if field.DBName != "is_read" {
		t.Fatalf("read flag column = %q, want is_read", field.DBName)
	}
}
