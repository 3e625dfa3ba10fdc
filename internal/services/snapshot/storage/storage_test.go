package storage

import (
	"errors"
	"testing"
)

func TestEntityCanonicalURL(t *testing.T) {
	tests := []struct {
		name   string
		entity Entity
		want   string
	}{
		{name: "node path", entity: Entity{ID: "7"}, want: "/node/7"},
		{name: "alias", entity: Entity{ID: "7", Alias: "about"}, want: "/about"},
		{name: "alias with slash", entity: Entity{ID: "7", Alias: "/about/team"}, want: "/about/team"},
		{name: "blank alias", entity: Entity{ID: "7", Alias: "  "}, want: "/node/7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entity.CanonicalURL(); got != tt.want {
				t.Fatalf("CanonicalURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunRecordCount(t *testing.T) {
	run := RunRecord{Entities: []RunEntity{
		{EntityID: "1", Outcome: OutcomeWritten},
		{EntityID: "2", Outcome: OutcomeFailed},
		{EntityID: "3", Outcome: OutcomeWritten},
	}}
	if got := run.Count(OutcomeWritten); got != 2 {
		t.Fatalf("Count(written) = %d", got)
	}
	if got := run.Count(OutcomeSkipped); got != 0 {
		t.Fatalf("Count(skipped) = %d", got)
	}
}

func TestCheckAlias(t *testing.T) {
	tests := []struct {
		alias string
		extra []string
		valid bool
	}{
		{alias: "", valid: true},
		{alias: "about", valid: true},
		{alias: "about/team", valid: true},
		{alias: "uploads", valid: true},
		{alias: "node", valid: false},
		{alias: "node/8", valid: false},
		{alias: "up", valid: false},
		{alias: "admin/snapshot", valid: false},
		{alias: "sites/default/files/css", extra: []string{"/sites/default/files"}, valid: false},
		{alias: "sites/default/files", extra: []string{"/sites/default/files/"}, valid: false},
		{alias: "about?x=1", valid: false},
		{alias: "about#top", valid: false},
		{alias: "about us", valid: false},
		{alias: "a/../b", valid: false},
		{alias: "a//b", valid: false},
	}
	for _, tt := range tests {
		t.Run(tt.alias, func(t *testing.T) {
			err := CheckAlias(tt.alias, tt.extra...)
			if tt.valid && err != nil {
				t.Fatalf("CheckAlias(%q) error = %v", tt.alias, err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidAlias) {
				t.Fatalf("CheckAlias(%q) error = %v, want ErrInvalidAlias", tt.alias, err)
			}
		})
	}
}
