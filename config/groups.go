package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/inconshreveable/log15/v3"
	"gopkg.in/yaml.v3"
)

var defaultScale = []string{"1", "2", "3", "5", "8", "13"}

const defaultTimeout = 90

// GroupConfig is the per-group voting configuration. Loaded once at startup
// and treated as immutable for the rest of the process run.
type GroupConfig struct {
	ChatID   int64    `json:"chat_id" yaml:"chat_id"`
	TopicID  int      `json:"topic_id" yaml:"topic_id"`
	Admins   []string `json:"admins" yaml:"admins"`
	Timeout  int      `json:"timeout" yaml:"timeout"`
	Scale    []string `json:"scale" yaml:"scale"`
	IsActive bool     `json:"is_active" yaml:"is_active"`

	// Optional Jira overrides. Empty values fall back to the process-level
	// Jira settings.
	JiraEmail    string   `json:"jira_email,omitempty" yaml:"jira_email"`
	JiraAPIToken string   `json:"jira_api_token,omitempty" yaml:"jira_api_token"`
	JiraProjects []string `json:"jira_projects,omitempty" yaml:"jira_projects"`

	// Project key -> story points field id, for instances where the field
	// differs per project.
	JiraFieldMapping map[string]string `json:"jira_field_mapping,omitempty" yaml:"jira_field_mapping"`
}

// UnmarshalJSON treats an absent is_active as active; only an explicit
// false disables the group.
func (g *GroupConfig) UnmarshalJSON(data []byte) error {
	type alias GroupConfig
	var tmp alias
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	var flag struct {
		IsActive *bool `json:"is_active"`
	}
	if err := json.Unmarshal(data, &flag); err != nil {
		return err
	}
	*g = GroupConfig(tmp)
	g.IsActive = flag.IsActive == nil || *flag.IsActive
	return nil
}

func (g *GroupConfig) UnmarshalYAML(value *yaml.Node) error {
	type alias GroupConfig
	var tmp alias
	if err := value.Decode(&tmp); err != nil {
		return err
	}
	var flag struct {
		IsActive *bool `yaml:"is_active"`
	}
	if err := value.Decode(&flag); err != nil {
		return err
	}
	*g = GroupConfig(tmp)
	g.IsActive = flag.IsActive == nil || *flag.IsActive
	return nil
}

// IsAdmin reports whether the handle is in the group admin list. Handles are
// compared case-insensitively, with or without the @ prefix.
func (g *GroupConfig) IsAdmin(username string) bool {
	if username == "" {
		return false
	}
	u := strings.ToLower(strings.TrimPrefix(username, "@"))
	for _, a := range g.Admins {
		if strings.ToLower(strings.TrimPrefix(a, "@")) == u {
			return true
		}
	}
	return false
}

// StoryPointsFieldFor returns the field id for an issue key, honoring the
// per-project mapping. An empty return means "use the process default".
func (g *GroupConfig) StoryPointsFieldFor(issueKey string) string {
	project, _, ok := strings.Cut(issueKey, "-")
	if !ok {
		return ""
	}
	return g.JiraFieldMapping[strings.ToUpper(project)]
}

// ProjectAllowed reports whether the issue belongs to one of the group's
// allowed Jira projects. An empty allow-list allows everything.
func (g *GroupConfig) ProjectAllowed(issueKey string) bool {
	if len(g.JiraProjects) == 0 {
		return true
	}
	project, _, ok := strings.Cut(issueKey, "-")
	if !ok {
		return false
	}
	for _, p := range g.JiraProjects {
		if strings.EqualFold(p, project) {
			return true
		}
	}
	return false
}

// ParseGroups loads group configs from the environment. Three formats are
// supported, tried in order:
//
//  1. GROUPS_CONFIG, a JSON array of group objects
//  2. GROUPS_CONFIG_FILE, path to a .json or .yaml file with the same array
//  3. CHAT_IDS / TOPIC_IDS / ADMIN_LISTS (+ TIMEOUTS, SCALES), comma/colon
//     separated lists, one entry per group
func ParseGroups() ([]GroupConfig, error) {
	if raw := os.Getenv("GROUPS_CONFIG"); raw != "" {
		var groups []GroupConfig
		if err := json.Unmarshal([]byte(raw), &groups); err != nil {
			return nil, &ConfigError{Field: "GROUPS_CONFIG", Reason: "invalid JSON: " + err.Error()}
		}
		return finishGroups(groups)
	}

	if path := os.Getenv("GROUPS_CONFIG_FILE"); path != "" {
		groups, err := parseGroupsFile(path)
		if err != nil {
			return nil, err
		}
		return finishGroups(groups)
	}

	groups, err := parseSimpleFormat()
	if err != nil {
		return nil, err
	}
	if groups == nil {
		log.Warn("no group configuration found, bot will ignore all chats")
		return nil, nil
	}
	return finishGroups(groups)
}

func parseGroupsFile(path string) ([]GroupConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Field: "GROUPS_CONFIG_FILE", Reason: err.Error()}
	}

	var groups []GroupConfig
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &groups)
	default:
		err = json.Unmarshal(data, &groups)
	}
	if err != nil {
		return nil, &ConfigError{Field: "GROUPS_CONFIG_FILE", Reason: "parse " + path + ": " + err.Error()}
	}
	return groups, nil
}

// parseSimpleFormat handles the DevOps-friendly format where each variable
// carries one comma-separated field per group and admin/scale lists are
// colon-separated between groups. Returns (nil, nil) when the variables are
// not set at all.
func parseSimpleFormat() ([]GroupConfig, error) {
	chatIDsStr := os.Getenv("CHAT_IDS")
	adminListsStr := os.Getenv("ADMIN_LISTS")
	if chatIDsStr == "" || adminListsStr == "" {
		return nil, nil
	}

	chatIDs, err := splitInt64s(chatIDsStr)
	if err != nil {
		return nil, &ConfigError{Field: "CHAT_IDS", Reason: err.Error()}
	}

	topicIDs := make([]int, len(chatIDs))
	if raw := os.Getenv("TOPIC_IDS"); raw != "" {
		parsed, err := splitInts(raw)
		if err != nil {
			return nil, &ConfigError{Field: "TOPIC_IDS", Reason: err.Error()}
		}
		copy(topicIDs, parsed)
	}

	adminLists := strings.Split(adminListsStr, ":")

	timeouts := make([]int, 0)
	if raw := os.Getenv("TIMEOUTS"); raw != "" {
		timeouts, err = splitInts(raw)
		if err != nil {
			return nil, &ConfigError{Field: "TIMEOUTS", Reason: err.Error()}
		}
	}

	var scales [][]string
	if raw := os.Getenv("SCALES"); raw != "" {
		for _, s := range strings.Split(raw, ":") {
			scales = append(scales, splitTrim(s))
		}
	}

	groups := make([]GroupConfig, 0, len(chatIDs))
	for i, chatID := range chatIDs {
		g := GroupConfig{ChatID: chatID, IsActive: true}
		if i < len(topicIDs) {
			g.TopicID = topicIDs[i]
		}
		if i < len(adminLists) {
			g.Admins = splitTrim(adminLists[i])
		}
		if i < len(timeouts) {
			g.Timeout = timeouts[i]
		}
		if i < len(scales) {
			g.Scale = scales[i]
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func finishGroups(groups []GroupConfig) ([]GroupConfig, error) {
	for i := range groups {
		g := &groups[i]
		if g.ChatID == 0 {
			return nil, &ConfigError{Field: "groups", Reason: "group without chat_id"}
		}
		if len(g.Admins) == 0 {
			return nil, &ConfigError{
				Field:  "groups",
				Reason: "group " + strconv.FormatInt(g.ChatID, 10) + " has no admins",
			}
		}
		if g.Timeout <= 0 {
			g.Timeout = defaultTimeout
		}
		if len(g.Scale) == 0 {
			g.Scale = append([]string(nil), defaultScale...)
		}
	}
	return groups, nil
}

func splitTrim(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitInts(s string) ([]int, error) {
	var out []int
	for _, p := range splitTrim(s) {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func splitInt64s(s string) ([]int64, error) {
	var out []int64
	for _, p := range splitTrim(s) {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
