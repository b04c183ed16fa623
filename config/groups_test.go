package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func clearGroupEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GROUPS_CONFIG", "GROUPS_CONFIG_FILE",
		"CHAT_IDS", "TOPIC_IDS", "ADMIN_LISTS", "TIMEOUTS", "SCALES",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestParseGroupsJSON(t *testing.T) {
	clearGroupEnv(t)
	t.Setenv("GROUPS_CONFIG", `[
		{"chat_id": -100123, "topic_id": 5, "admins": ["@boss"], "timeout": 60,
		 "scale": ["1","2","3"], "is_active": true,
		 "jira_projects": ["PROJ"], "jira_field_mapping": {"PROJ": "customfield_555"}}
	]`)

	groups, err := ParseGroups()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("got %d groups", len(groups))
	}
	g := groups[0]
	if g.ChatID != -100123 || g.TopicID != 5 || g.Timeout != 60 {
		t.Errorf("group = %+v", g)
	}
	if !g.IsAdmin("BOSS") || !g.IsAdmin("@boss") || g.IsAdmin("peon") {
		t.Error("admin matching must ignore case and @")
	}
	if g.StoryPointsFieldFor("proj-7") != "customfield_555" {
		t.Error("field mapping must match the project case-insensitively")
	}
	if g.StoryPointsFieldFor("OTHER-1") != "" {
		t.Error("unmapped project falls back to the default field")
	}
}

func TestParseGroupsValidation(t *testing.T) {
	clearGroupEnv(t)
	t.Setenv("GROUPS_CONFIG", `[{"chat_id": 0, "admins": ["a"], "is_active": true}]`)
	_, err := ParseGroups()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("missing chat_id should be a ConfigError, got %v", err)
	}

	t.Setenv("GROUPS_CONFIG", `[{"chat_id": 5, "admins": [], "is_active": true}]`)
	if _, err := ParseGroups(); !errors.As(err, &cfgErr) {
		t.Fatalf("group without admins should be a ConfigError, got %v", err)
	}

	t.Setenv("GROUPS_CONFIG", `not json`)
	if _, err := ParseGroups(); !errors.As(err, &cfgErr) {
		t.Fatalf("bad JSON should be a ConfigError, got %v", err)
	}
}

func TestParseGroupsDefaults(t *testing.T) {
	clearGroupEnv(t)
	t.Setenv("GROUPS_CONFIG", `[{"chat_id": 5, "admins": ["a"], "is_active": true}]`)

	groups, err := ParseGroups()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	g := groups[0]
	if g.Timeout != defaultTimeout {
		t.Errorf("timeout %d, want default %d", g.Timeout, defaultTimeout)
	}
	if len(g.Scale) != len(defaultScale) {
		t.Errorf("scale %v, want default", g.Scale)
	}
}

func TestParseGroupsActiveByDefault(t *testing.T) {
	clearGroupEnv(t)
	t.Setenv("GROUPS_CONFIG", `[
		{"chat_id": -1, "admins": ["a"]},
		{"chat_id": -2, "admins": ["a"], "is_active": false},
		{"chat_id": -3, "admins": ["a"], "is_active": true}
	]`)

	groups, err := ParseGroups()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !groups[0].IsActive {
		t.Error("omitted is_active must default to active")
	}
	if groups[1].IsActive {
		t.Error("explicit false must disable the group")
	}
	if !groups[2].IsActive {
		t.Error("explicit true must stay active")
	}

	cfg := &Config{Groups: groups}
	if g := cfg.Group(-1, 0); g == nil {
		t.Error("group without is_active must still be routable")
	}
	if g := cfg.Group(-2, 0); g != nil {
		t.Error("disabled group must not be routable")
	}
}

func TestParseGroupsYAMLFile(t *testing.T) {
	clearGroupEnv(t)
	path := filepath.Join(t.TempDir(), "groups.yaml")
	content := `
- chat_id: -200
  topic_id: 0
  admins: [boss, deputy]
- chat_id: -300
  admins: [boss]
  is_active: false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GROUPS_CONFIG_FILE", path)

	groups, err := ParseGroups()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(groups) != 2 || groups[0].ChatID != -200 || len(groups[0].Admins) != 2 {
		t.Fatalf("groups = %+v", groups)
	}
	if !groups[0].IsActive {
		t.Error("omitted is_active in YAML must default to active")
	}
	if groups[1].IsActive {
		t.Error("explicit false in YAML must disable the group")
	}
}

func TestParseGroupsSimpleFormat(t *testing.T) {
	clearGroupEnv(t)
	t.Setenv("CHAT_IDS", "-100, -200")
	t.Setenv("TOPIC_IDS", "0, 7")
	t.Setenv("ADMIN_LISTS", "boss,deputy:other")
	t.Setenv("TIMEOUTS", "60, 120")
	t.Setenv("SCALES", "1,2,3:1,2,3,5,8")

	groups, err := ParseGroups()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("got %d groups", len(groups))
	}
	first, second := groups[0], groups[1]
	if first.ChatID != -100 || first.TopicID != 0 || first.Timeout != 60 {
		t.Errorf("first = %+v", first)
	}
	if len(first.Admins) != 2 || first.Admins[1] != "deputy" {
		t.Errorf("first admins = %v", first.Admins)
	}
	if second.ChatID != -200 || second.TopicID != 7 || second.Timeout != 120 {
		t.Errorf("second = %+v", second)
	}
	if len(second.Scale) != 5 {
		t.Errorf("second scale = %v", second.Scale)
	}
	if !first.IsActive || !second.IsActive {
		t.Error("simple-format groups are always active")
	}
}

func TestParseGroupsNoneConfigured(t *testing.T) {
	clearGroupEnv(t)
	groups, err := ParseGroups()
	if err != nil || groups != nil {
		t.Fatalf("got %v/%v, want nil/nil", groups, err)
	}
}

func TestProjectAllowed(t *testing.T) {
	g := GroupConfig{JiraProjects: []string{"PROJ", "OPS"}}
	if !g.ProjectAllowed("proj-1") || !g.ProjectAllowed("OPS-9") {
		t.Error("listed projects must be allowed, case-insensitively")
	}
	if g.ProjectAllowed("OTHER-1") || g.ProjectAllowed("garbage") {
		t.Error("unlisted projects must be rejected")
	}

	open := GroupConfig{}
	if !open.ProjectAllowed("ANY-1") {
		t.Error("empty allow-list allows everything")
	}
}

func TestConfigGroupLookup(t *testing.T) {
	cfg := &Config{Groups: []GroupConfig{
		{ChatID: -1, TopicID: 0, IsActive: true},
		{ChatID: -1, TopicID: 7, IsActive: true},
		{ChatID: -2, TopicID: 3, IsActive: false},
	}}

	if g := cfg.Group(-1, 7); g == nil || g.TopicID != 7 {
		t.Errorf("exact topic match: %+v", g)
	}
	if g := cfg.Group(-1, 99); g == nil || g.TopicID != 0 {
		t.Errorf("topic 0 covers the whole chat: %+v", g)
	}
	if g := cfg.Group(-2, 3); g != nil {
		t.Errorf("inactive group must not match: %+v", g)
	}
	if g := cfg.Group(-3, 0); g != nil {
		t.Errorf("unknown chat must not match: %+v", g)
	}
}
