package smtp

import (
	"strings"

	"github.com/wneessen/go-mail"
)

// Provider is the submission endpoint of a mail service.
type Provider struct {
	Host string
	Port int
	TLS  mail.TLSPolicy
}

// Proton Mail only accepts SMTP through the local Bridge.
var protonBridge = Provider{Host: "127.0.0.1", Port: 1025, TLS: mail.TLSOpportunistic}

var providers = map[string]Provider{
	"gmail.com":      {Host: "smtp.gmail.com", Port: 587, TLS: mail.TLSMandatory},
	"googlemail.com": {Host: "smtp.gmail.com", Port: 587, TLS: mail.TLSMandatory},
	"outlook.com":    {Host: "smtp-mail.outlook.com", Port: 587, TLS: mail.TLSMandatory},
	"hotmail.com":    {Host: "smtp-mail.outlook.com", Port: 587, TLS: mail.TLSMandatory},
	"live.com":       {Host: "smtp-mail.outlook.com", Port: 587, TLS: mail.TLSMandatory},
	"yahoo.com":      {Host: "smtp.mail.yahoo.com", Port: 587, TLS: mail.TLSMandatory},
	"icloud.com":     {Host: "smtp.mail.me.com", Port: 587, TLS: mail.TLSMandatory},
	"me.com":         {Host: "smtp.mail.me.com", Port: 587, TLS: mail.TLSMandatory},
	"protonmail.com": protonBridge,
	"proton.me":      protonBridge,
}

// DetectProvider returns the well-known submission endpoint for the domain of
// address.
func DetectProvider(address string) (Provider, bool) {
	at := strings.LastIndexByte(address, '@')
	if at < 0 {
		return Provider{}, false
	}
	p, ok := providers[strings.ToLower(address[at+1:])]
	return p, ok
}
