// Package gemini discovers account-deletion details for a site by asking a
// Gemini model for structured JSON.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"

	"google.golang.org/genai"

	"github.com/ericfisherdev/datawipe/internal/classify"
	"github.com/ericfisherdev/datawipe/internal/domain/model"
	"github.com/ericfisherdev/datawipe/internal/domain/port/driven"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash"

// Compile-time interface satisfaction check.
var _ driven.Enricher = (*Enricher)(nil)

// generator is satisfied by *genai.Models.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Enricher implements driven.Enricher with the Gemini API.
type Enricher struct {
	models generator
	model  string
	logger *slog.Logger
}

// NewEnricher creates a client for apiKey.
func NewEnricher(ctx context.Context, apiKey, modelName string, logger *slog.Logger) (*Enricher, error) {
	if apiKey == "" {
		return nil, errors.New("genai api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newEnricher(client.Models, modelName, logger), nil
}

func newEnricher(models generator, modelName string, logger *slog.Logger) *Enricher {
	if modelName == "" {
		modelName = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{models: models, model: modelName, logger: logger}
}

const instruction = `You help people delete their online accounts. Given a website, answer with what you know about deleting an account there. Leave a field empty rather than guess. deletion_difficulty rates the self-service deletion process from 1 (one click) to 10 (only possible by contacting support).`

var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"site_name":              {Type: genai.TypeString},
		"deletion_difficulty":    {Type: genai.TypeInteger},
		"privacy_policy_url":     {Type: genai.TypeString},
		"deletion_contact_email": {Type: genai.TypeString},
		"deletion_url":           {Type: genai.TypeString},
		"deletion_instructions":  {Type: genai.TypeString},
	},
	Required: []string{"site_name", "deletion_difficulty"},
}

type siteInfo struct {
	SiteName             string `json:"site_name"`
	DeletionDifficulty   int    `json:"deletion_difficulty"`
	PrivacyPolicyURL     string `json:"privacy_policy_url"`
	DeletionContactEmail string `json:"deletion_contact_email"`
	DeletionURL          string `json:"deletion_url"`
	DeletionInstructions string `json:"deletion_instructions"`
}

// Discover asks the model about siteURL. Values that are not well-formed URLs
// or addresses are dropped.
func (e *Enricher) Discover(ctx context.Context, siteName, siteURL string) (model.SiteMetadata, error) {
	domain := classify.ExtractDomain(siteURL)
	if domain == "" {
		return model.SiteMetadata{}, fmt.Errorf("no domain in %q", siteURL)
	}

	prompt := fmt.Sprintf("Domain: %s\nSite name: %s\nSite URL: %s", domain, siteName, siteURL)
	resp, err := e.models.GenerateContent(ctx, e.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(instruction, genai.RoleUser),
			ResponseMIMEType:  "application/json",
			ResponseSchema:    responseSchema,
			Temperature:       genai.Ptr[float32](0.1),
		})
	if err != nil {
		return model.SiteMetadata{}, fmt.Errorf("generate site info for %s: %w", domain, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return model.SiteMetadata{}, fmt.Errorf("empty response for %s", domain)
	}

	var info siteInfo
	if err := json.Unmarshal([]byte(text), &info); err != nil {
		return model.SiteMetadata{}, fmt.Errorf("decode site info for %s: %w", domain, err)
	}

	meta := model.SiteMetadata{
		Domain:               domain,
		SiteName:             strings.TrimSpace(info.SiteName),
		SiteURL:              siteURL,
		DeletionURL:          webURL(info.DeletionURL),
		DeletionContactEmail: address(info.DeletionContactEmail),
		DeletionDifficulty:   clampDifficulty(info.DeletionDifficulty),
		PrivacyPolicyURL:     webURL(info.PrivacyPolicyURL),
		Instructions:         strings.TrimSpace(info.DeletionInstructions),
	}
	if meta.SiteName == "" {
		meta.SiteName = siteName
	}

	e.logger.Debug("site info discovered",
		"domain", domain, "difficulty", meta.DeletionDifficulty,
		"has_url", meta.DeletionURL != "", "has_contact", meta.DeletionContactEmail != "")
	return meta, nil
}

// clampDifficulty keeps ratings in 1..10. Zero stays unknown.
func clampDifficulty(d int) int {
	switch {
	case d <= 0:
		return 0
	case d > 10:
		return 10
	default:
		return d
	}
}

func webURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return u.String()
}

func address(raw string) string {
	a, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return a.Address
}
