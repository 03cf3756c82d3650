package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestRelation_JSONStates(t *testing.T) {
	base := Record{ID: "r1", CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}

	tests := []struct {
		name    string
		group   Relation[Group]
		want    string
		notWant string
	}{
		{"not requested", Relation[Group]{}, "", `"group"`},
		{"absent", Absent[Group](), `"group":null`, ""},
		{"present", Present(Group{ID: "g1", Name: Ptr("Acme")}), `"group":{"id":"g1","name":"Acme"`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			r.Group = tt.group
			raw, err := json.Marshal(r)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			s := string(raw)
			if tt.want != "" && !strings.Contains(s, tt.want) {
				t.Errorf("%s missing %s", s, tt.want)
			}
			if tt.notWant != "" && strings.Contains(s, tt.notWant) {
				t.Errorf("%s must not contain %s", s, tt.notWant)
			}
		})
	}
}

func TestRelation_UnmarshalRestoresState(t *testing.T) {
	var r Record
	raw := `{"id":"r1","created_at":"2024-01-02T03:04:05Z","group":null,"enrichment":{"record_id":"r1","phone":"+1"}}`
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !r.Group.Requested() || r.Group.Value() != nil {
		t.Errorf("group should be absent, got requested=%v value=%v", r.Group.Requested(), r.Group.Value())
	}
	if e := r.Enrichment.Value(); e == nil || *e.Phone != "+1" {
		t.Errorf("enrichment = %+v", e)
	}

	var bare Record
	if err := json.Unmarshal([]byte(`{"id":"r2","created_at":"2024-01-02T03:04:05Z"}`), &bare); err != nil {
		t.Fatal(err)
	}
	if bare.Group.Requested() || bare.Enrichment.Requested() {
		t.Error("missing keys must stay not-requested")
	}
}

func TestParsePopulate(t *testing.T) {
	p, unknown := ParsePopulate([]string{"group", "group.enrichment", "", "owner"})
	if !p.Group || !p.GroupEnrichment || p.Enrichment {
		t.Errorf("got %+v", p)
	}
	if len(unknown) != 1 || unknown[0] != "owner" {
		t.Errorf("unknown = %v", unknown)
	}
	if got := strings.Join(p.Names(), ","); got != "group,group_enrichment" {
		t.Errorf("Names() = %s", got)
	}
}
