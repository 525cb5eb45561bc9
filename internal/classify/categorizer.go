// Package classify assigns categories, risk, and deletion priority to accounts
// with deterministic, explainable rules.
package classify

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/ericfisherdev/datawipe/internal/catalog"
	"github.com/ericfisherdev/datawipe/internal/domain/model"
)

const (
	nameKeywordWeight   = 1.0
	domainKeywordWeight = 0.5
	keywordSaturation   = 3.0
	catchAllConfidence  = 0.5
)

// Classification is the category assigned to an account and why.
type Classification struct {
	Category        model.Category
	CategoryName    string
	Confidence      float64
	RiskLevel       model.Level
	DataSensitivity model.Level
	Reason          string
}

// Categorizer classifies accounts against the category catalog.
type Categorizer struct {
	categories []catalog.CategoryInfo
	catchAll   catalog.CategoryInfo
}

// NewCategorizer returns a categorizer over the categories in c.
func NewCategorizer(c *catalog.Catalog) *Categorizer {
	return &Categorizer{
		categories: c.Categories(),
		catchAll:   c.CatchAll(),
	}
}

// Categorize classifies a site. An exact domain match wins outright; failing
// that, keywords found in the site name and domain are scored; failing that,
// the catch-all category is returned.
func (c *Categorizer) Categorize(siteName, siteURL string) Classification {
	domain := ExtractDomain(siteURL)

	if domain != "" {
		for _, cat := range c.categories {
			if slices.Contains(cat.Domains, domain) {
				return classification(cat, 1.0, "domain match: "+domain)
			}
		}
	}

	name := strings.ToLower(siteName)
	var (
		best      catalog.CategoryInfo
		bestScore float64
		bestHits  []string
	)
	for _, cat := range c.categories {
		if cat.CatchAll {
			continue
		}
		var score float64
		var hits []string
		for _, kw := range cat.Keywords {
			if strings.Contains(name, kw) {
				score += nameKeywordWeight
				hits = append(hits, kw+" (name)")
			}
			if domain != "" && strings.Contains(domain, kw) {
				score += domainKeywordWeight
				hits = append(hits, kw+" (domain)")
			}
		}
		if score > bestScore {
			best, bestScore, bestHits = cat, score, hits
		}
	}

	if bestScore > 0 {
		reason := fmt.Sprintf("keywords: %s", strings.Join(bestHits, ", "))
		return classification(best, min(bestScore/keywordSaturation, 1.0), reason)
	}
	return classification(c.catchAll, catchAllConfidence, "no domain or keyword match")
}

func classification(cat catalog.CategoryInfo, confidence float64, reason string) Classification {
	return Classification{
		Category:        cat.ID,
		CategoryName:    cat.Name,
		Confidence:      confidence,
		RiskLevel:       cat.RiskLevel,
		DataSensitivity: cat.DataSensitivity,
		Reason:          reason,
	}
}

// ExtractDomain returns the lower-case host of raw without a leading "www.".
// It returns "" when the host has no dot.
func ExtractDomain(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		if !strings.Contains(s, ".") {
			return ""
		}
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	if !strings.Contains(host, ".") {
		return ""
	}
	return host
}

// Enrich classifies a canonical account and scores its deletion priority.
func (c *Categorizer) Enrich(acct model.CanonicalAccount, hasBreach bool) model.Account {
	cls := c.Categorize(acct.SiteName, acct.SiteURL)
	prio := AssessPriority(cls.Category, cls.RiskLevel, hasBreach)

	return model.Account{
		CanonicalAccount:   acct,
		Category:           cls.Category,
		CategoryConfidence: cls.Confidence,
		CategoryReason:     cls.Reason,
		RiskLevel:          cls.RiskLevel,
		DataSensitivity:    cls.DataSensitivity,
		DeletionPriority:   prio.Score,
		PriorityLabel:      prio.Label,
		HasBreach:          hasBreach,
		Status:             model.AccountStatusDiscovered,
	}
}
