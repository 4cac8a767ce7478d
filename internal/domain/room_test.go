package domain

import (
	"strings"
	"testing"
)

func TestNewRoomIDIsDeterministic(t *testing.T) {
	a := NewRoomID("f1", "i1", "memo123")
	b := NewRoomID("f1", "i1", "memo123")
	if a != b {
		t.Fatalf("same inputs gave different ids: %q vs %q", a, b)
	}
	if a == NewRoomID("f1", "i1", "memo456") {
		t.Fatal("different memos must give different ids")
	}
	if a == NewRoomID("f1", "i2", "memo123") {
		t.Fatal("different pairs must give different ids")
	}
}

func TestNewCreateRoomSpecAssignsSlotsByCallerRole(t *testing.T) {
	founder := Viewer{ID: "f1", Role: RoleFounder, Name: "Alex Rivera"}
	spec := NewCreateRoomSpec(founder, "i1", "memo123", "Sarah Chen", "Accel Partners")
	if spec.FounderID != "f1" || spec.InvestorID != "i1" {
		t.Fatalf("founder caller slots = (%q, %q)", spec.FounderID, spec.InvestorID)
	}
	if spec.InvestorName != "Sarah Chen" || spec.InvestorFirm != "Accel Partners" {
		t.Fatalf("founder caller counterpart = (%q, %q)", spec.InvestorName, spec.InvestorFirm)
	}

	investor := Viewer{ID: "i1", Role: RoleInvestor, Name: "Sarah Chen"}
	spec = NewCreateRoomSpec(investor, "f1", "memo123", "Alex Rivera", "Northwind Robotics")
	if spec.FounderID != "f1" || spec.InvestorID != "i1" {
		t.Fatalf("investor caller slots = (%q, %q)", spec.FounderID, spec.InvestorID)
	}
	if spec.FounderName != "Alex Rivera" || spec.CompanyName != "Northwind Robotics" {
		t.Fatalf("investor caller counterpart = (%q, %q)", spec.FounderName, spec.CompanyName)
	}
}

func TestViewForCollapsesUnreadToViewerSide(t *testing.T) {
	room := ChatRoom{ID: "r1", FounderID: "f1", InvestorID: "i1", FounderUnread: 3, InvestorUnread: 7}

	if got := room.ViewFor(RoleFounder).UnreadCount; got != 3 {
		t.Fatalf("founder view unread = %d, want 3", got)
	}
	if got := room.ViewFor(RoleInvestor).UnreadCount; got != 7 {
		t.Fatalf("investor view unread = %d, want 7", got)
	}
}

func TestRoleHelpers(t *testing.T) {
	if RoleFounder.Counterpart() != RoleInvestor || RoleInvestor.Counterpart() != RoleFounder {
		t.Fatal("counterpart mapping wrong")
	}
	if Role("admin").Valid() {
		t.Fatal("unknown role accepted")
	}
}

func TestMessageProvisionalAndPreview(t *testing.T) {
	m := Message{ID: NewProvisionalID(), Content: "hi"}
	if !m.IsProvisional() {
		t.Fatal("provisional id not detected")
	}
	m.ID = NewMessageID()
	if m.IsProvisional() {
		t.Fatal("finalized id flagged provisional")
	}

	if ValidContent("   ") || !ValidContent(" x ") {
		t.Fatal("content validation wrong")
	}

	long := Message{Content: strings.Repeat("a", 200)}
	if got := len(long.Preview()); got != 140 {
		t.Fatalf("preview length = %d, want 140", got)
	}
	short := Message{Content: "Hello"}
	if short.Preview() != "Hello" {
		t.Fatalf("short preview = %q", short.Preview())
	}
}
