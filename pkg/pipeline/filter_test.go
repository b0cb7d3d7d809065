package pipeline

import (
	"testing"

	"github.com/salesops/gongsync/pkg/gong"
)

func TestTitleMatcher(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		title  string
		want   bool
	}{
		{"single keyword match", "demo", "Product Demo with Acme", true},
		{"single keyword miss", "demo", "Weekly Standup", false},
		{"case insensitive filter", "DEMO", "product demo", true},
		{"case insensitive title", "demo", "PRODUCT DEMO", true},
		{"comma list matches any", "renewal, demo", "Renewal Discussion", true},
		{"comma list second keyword", "renewal, demo", "Product Demo", true},
		{"comma list miss", "renewal, demo", "Weekly Standup", false},
		{"space list matches any", "renewal demo", "Product Demo", true},
		{"and requires all", "acme and renewal", "Acme Renewal Discussion", true},
		{"and partial miss", "acme and renewal", "Acme Product Demo", false},
		{"and keyword order irrelevant", "renewal and acme", "Acme Renewal Discussion", true},
		{"substring match", "acm", "Acme Renewal", true},
		{"surrounding whitespace", "  demo  ", "Product Demo", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match := titleMatcher(tt.filter)
			if match == nil {
				t.Fatal("titleMatcher() = nil, want predicate")
			}
			if got := match(tt.title); got != tt.want {
				t.Errorf("match(%q) with filter %q = %v, want %v", tt.title, tt.filter, got, tt.want)
			}
		})
	}
}

func TestTitleMatcher_Empty(t *testing.T) {
	if titleMatcher("") != nil {
		t.Error("titleMatcher(\"\") != nil, want nil for empty filter")
	}
	if titleMatcher("   ") != nil {
		t.Error("titleMatcher(blank) != nil, want nil for whitespace filter")
	}
}

func TestFilterCalls(t *testing.T) {
	calls := []gong.Call{
		{ID: "c1", Title: "Pipeline Review with Acme"},
		{ID: "c2", Title: "Weekly Standup"},
		{ID: "c3", Title: "Acme Renewal Discussion"},
	}

	kept := filterCalls(calls, "acme")
	if len(kept) != 2 {
		t.Fatalf("filterCalls() kept %d calls, want 2", len(kept))
	}
	if kept[0].ID != "c1" || kept[1].ID != "c3" {
		t.Errorf("filterCalls() kept %s, %s; want c1, c3 in input order", kept[0].ID, kept[1].ID)
	}
}

func TestFilterCalls_EmptyFilterKeepsAll(t *testing.T) {
	calls := []gong.Call{{ID: "c1"}, {ID: "c2"}}
	if kept := filterCalls(calls, ""); len(kept) != 2 {
		t.Errorf("filterCalls() kept %d calls, want all 2", len(kept))
	}
}
