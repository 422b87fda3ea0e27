package ratelimit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultPolicies(t *testing.T) {
	want := PolicyTable{
		"api":            {Name: "api", Window: 15 * time.Minute, Max: 100},
		"auth":           {Name: "auth", Window: 15 * time.Minute, Max: 5},
		"content_create": {Name: "content_create", Window: 5 * time.Minute, Max: 5},
		"search":         {Name: "search", Window: time.Minute, Max: 30},
	}

	got := DefaultPolicies()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DefaultPolicies() mismatch (-want +got):\n%s", diff)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if diff := cmp.Diff([]string{"api", "auth", "content_create", "search"}, got.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}

func TestPolicyTable_Validate(t *testing.T) {
	tests := []struct {
		name    string
		table   PolicyTable
		wantErr bool
	}{
		{"defaults", DefaultPolicies(), false},
		{"missing fallback", PolicyTable{"auth": {Name: "auth", Window: time.Minute, Max: 1}}, true},
		{"name mismatch", PolicyTable{"api": {Name: "other", Window: time.Minute, Max: 1}}, true},
		{"zero window", PolicyTable{"api": {Name: "api", Max: 1}}, true},
		{"negative max", PolicyTable{"api": {Name: "api", Window: time.Minute, Max: -1}}, true},
		{"zero max is allowed", PolicyTable{"api": {Name: "api", Window: time.Minute}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParsePolicies(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		want    PolicyTable
		wantErr bool
	}{
		{
			name: "valid document",
			doc: `
policies:
  - name: search
    window: 2m
    max: 60
  - name: comments
    window: 30s
    max: 10
`,
			want: PolicyTable{
				"search":   {Name: "search", Window: 2 * time.Minute, Max: 60},
				"comments": {Name: "comments", Window: 30 * time.Second, Max: 10},
			},
		},
		{
			name:    "duplicate name",
			doc:     "policies:\n  - {name: a, window: 1m, max: 1}\n  - {name: a, window: 1m, max: 2}\n",
			wantErr: true,
		},
		{
			name:    "missing window",
			doc:     "policies:\n  - {name: a, max: 1}\n",
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			doc:     "policies: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePolicies([]byte(tt.doc))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePolicies() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParsePolicies() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	doc := "policies:\n  - name: auth\n    window: 10m\n    max: 3\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	table, err := LoadPolicyFile(path)
	if err != nil {
		t.Fatalf("LoadPolicyFile() error = %v", err)
	}

	auth, _ := table.Lookup(PolicyAuth)
	if auth.Max != 3 || auth.Window != 10*time.Minute {
		t.Errorf("auth policy = %+v, want override", auth)
	}
	if _, ok := table.Lookup(PolicyAPI); !ok {
		t.Error("defaults should be kept when merging")
	}

	if _, err := LoadPolicyFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadPolicyFile() on missing file should fail")
	}
}
