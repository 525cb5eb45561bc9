package application

import (
	"fmt"
	"net/netip"
	"strings"
	"text/template"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/ericfisherdev/datawipe/internal/classify"
	"github.com/ericfisherdev/datawipe/internal/domain/model"
)

// Requester identifies the person on whose behalf erasure requests are sent.
type Requester struct {
	Name  string
	Email string
}

// signature is the name the request is signed with.
func (r Requester) signature() string {
	if r.Name != "" {
		return r.Name
	}
	if local, _, ok := strings.Cut(r.Email, "@"); ok {
		return local
	}
	return "Account Holder"
}

// Recipient sources recorded in the audit trail.
const (
	recipientKnown   = "known"
	recipientGuessed = "guessed"
)

// erasureRecipient picks where to send the erasure request: the contact the
// enricher found, else the first privacy alias at the site's registrable
// domain, so accounts.google.com guesses privacy@google.com.
func erasureRecipient(hints model.SiteMetadata, siteURL string, aliases []string) (addr, source string) {
	if hints.DeletionContactEmail != "" {
		return hints.DeletionContactEmail, recipientKnown
	}

	domain := mailDomain(siteURL)
	if domain == "" || len(aliases) == 0 {
		return "", ""
	}
	return aliases[0] + "@" + domain, recipientGuessed
}

func mailDomain(siteURL string) string {
	host := classify.ExtractDomain(siteURL)
	if host == "" {
		return ""
	}
	if _, err := netip.ParseAddr(host); err == nil {
		return host
	}
	if registrable, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return registrable
	}
	return host
}

func erasureSubject(acct model.Account) string {
	return "GDPR Article 17 Data Deletion Request - " + acct.Identity()
}

var erasureTemplate = template.Must(template.New("erasure").Parse(`Dear {{.SiteName}} Data Protection Team,

I am writing to request the complete deletion of my personal data from your platform in accordance with Article 17 of the EU General Data Protection Regulation (GDPR), the Right to Erasure.

ACCOUNT INFORMATION:
- Username: {{.Username}}
- Email: {{.Email}}
- Site: {{.SiteURL}}

DELETION REQUEST:
Under GDPR Article 17, I request that you:

1. DELETE all personal data associated with this account, including profile information, activity logs, communications, derived profiles, and backup copies.
2. REMOVE all records of my activity on your platform.
3. ENSURE that no personal data remains in primary databases, backup systems, log files, analytics systems, or third-party integrations.
4. CONFIRM in writing that the deletion has been completed within 30 days of receipt of this request.

LEGAL BASIS:
This request is made under GDPR Article 17 (Right to Erasure) and GDPR Article 12 (Transparent information and communication). If you process EU residents' data, you are obliged to comply within one month of receipt, as specified in GDPR Article 12(3).

CONFIRMATION REQUIRED:
Please confirm in writing:
1. Receipt of this deletion request
2. Completion of the deletion process
3. Any data that cannot be deleted and the legal basis for retention

If you require additional information to process this request, please reply to this email address.

Regards,
{{.Signature}}

---
Generated on: {{.Generated}}
`))

type erasureFields struct {
	SiteName  string
	SiteURL   string
	Username  string
	Email     string
	Signature string
	Generated string
}

// erasureBody renders the Article 17 request for acct.
func erasureBody(acct model.Account, requester Requester, now time.Time) (string, error) {
	fields := erasureFields{
		SiteName:  acct.SiteName,
		SiteURL:   acct.SiteURL,
		Username:  acct.Identity(),
		Email:     acct.Email,
		Signature: requester.signature(),
		Generated: now.UTC().Format("2006-01-02 15:04:05 UTC"),
	}
	if fields.Email == "" {
		fields.Email = "N/A"
	}

	var b strings.Builder
	if err := erasureTemplate.Execute(&b, fields); err != nil {
		return "", fmt.Errorf("render erasure request: %w", err)
	}
	return b.String(), nil
}
