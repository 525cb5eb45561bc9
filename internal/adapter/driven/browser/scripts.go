package browser

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
	"gopkg.in/yaml.v3"
)

//go:embed sites.yaml
var sitesYAML []byte

// Step actions.
const (
	ActionGoto   = "goto"
	ActionFill   = "fill"
	ActionClick  = "click"
	ActionCheck  = "check"
	ActionSelect = "select"
)

// Step is one scripted browser interaction.
type Step struct {
	Action   string `yaml:"action"`
	Selector string `yaml:"selector"`
	Text     string `yaml:"text"`
	Value    string `yaml:"value"`
	URL      string `yaml:"url"`
}

// LoginForm holds the selectors of a site's sign-in form.
type LoginForm struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Submit   string `yaml:"submit"`
}

// Script describes how to delete an account on one site.
type Script struct {
	Domain            string    `yaml:"domain"`
	Aliases           []string  `yaml:"aliases"`
	Difficulty        int       `yaml:"difficulty"`
	RequiresTwoFactor bool      `yaml:"requires_2fa"`
	LoginURL          string    `yaml:"login_url"`
	Login             LoginForm `yaml:"login"`
	DeletionURL       string    `yaml:"deletion_url"`
	Steps             []Step    `yaml:"steps"`
	Success           []string  `yaml:"success"`

	success []*regexp.Regexp
}

// Scripts indexes site scripts by domain.
type Scripts struct {
	byDomain map[string]*Script
}

// DefaultScripts parses the embedded scripts.
func DefaultScripts() (*Scripts, error) {
	return ParseScripts(sitesYAML)
}

// ParseScripts decodes and validates a sites document.
func ParseScripts(data []byte) (*Scripts, error) {
	var doc struct {
		Sites []*Script `yaml:"sites"`
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode site scripts: %w", err)
	}

	s := &Scripts{byDomain: make(map[string]*Script)}
	for _, script := range doc.Sites {
		if err := script.compile(); err != nil {
			return nil, fmt.Errorf("site %q: %w", script.Domain, err)
		}
		for _, d := range append([]string{script.Domain}, script.Aliases...) {
			d = strings.ToLower(d)
			if _, dup := s.byDomain[d]; dup {
				return nil, fmt.Errorf("site %q: duplicate domain %q", script.Domain, d)
			}
			s.byDomain[d] = script
		}
	}
	return s, nil
}

func (s *Script) compile() error {
	if s.Domain == "" {
		return errors.New("missing domain")
	}
	if s.Login.Username == "" || s.Login.Password == "" || s.Login.Submit == "" {
		return errors.New("incomplete login form")
	}
	if len(s.Success) == 0 {
		return errors.New("no success indicators")
	}
	for i, st := range s.Steps {
		switch st.Action {
		case ActionGoto:
			if st.URL == "" {
				return fmt.Errorf("step %d: goto without url", i+1)
			}
		case ActionFill, ActionClick, ActionCheck, ActionSelect:
			if st.Selector == "" {
				return fmt.Errorf("step %d: %s without selector", i+1, st.Action)
			}
		default:
			return fmt.Errorf("step %d: unknown action %q", i+1, st.Action)
		}
	}

	s.success = make([]*regexp.Regexp, 0, len(s.Success))
	for _, pattern := range s.Success {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return fmt.Errorf("success indicator %q: %w", pattern, err)
		}
		s.success = append(s.success, re)
	}
	return nil
}

// Lookup returns the script for host, matching the exact host first and then
// its registrable domain.
func (s *Scripts) Lookup(host string) (*Script, bool) {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if script, ok := s.byDomain[host]; ok {
		return script, true
	}
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		script, ok := s.byDomain[etld1]
		return script, ok
	}
	return nil, false
}

// Domains returns the primary domain of every script.
func (s *Scripts) Domains() []string {
	seen := make(map[string]bool)
	var out []string
	for _, script := range s.byDomain {
		if !seen[script.Domain] {
			seen[script.Domain] = true
			out = append(out, script.Domain)
		}
	}
	return out
}

// confirmation returns the first success indicator match in text.
func (s *Script) confirmation(text string) (string, bool) {
	for _, re := range s.success {
		if m := re.FindString(text); m != "" {
			return m, true
		}
	}
	return "", false
}
