package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/jamesruggles/footprint/internal/retry"
)

// Builtins returns the standard adapter set.
func Builtins() []Provider {
	return []Provider{
		NewSocialProfiles(nil),
		NewBreachDirectory("", nil),
		NewDataBroker(),
		NewDomainReputation(),
		NewPhoneIntel(),
	}
}

func defaultClient() *http.Client {
	return &http.Client{
		Timeout: 15 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}

// --- Social Profiles ---

// socialPlatform describes one platform probe: a profile URL template and
// the data fields a live profile page corroborates.
type socialPlatform struct {
	name   string
	urlFmt string
	fields []string
}

var socialPlatforms = []socialPlatform{
	{"github", "https://github.com/%s", []string{"name", "bio", "avatar"}},
	{"reddit", "https://www.reddit.com/user/%s", []string{"name", "avatar"}},
	{"x", "https://x.com/%s", []string{"name", "bio", "avatar", "follower_count"}},
	{"instagram", "https://www.instagram.com/%s/", []string{"name", "avatar", "follower_count"}},
	{"tiktok", "https://www.tiktok.com/@%s", []string{"name", "avatar", "follower_count"}},
	{"mastodon.social", "https://mastodon.social/@%s", []string{"name", "bio", "avatar"}},
}

// SocialProfiles probes a fixed platform list for a profile page under the
// target's handle. A 200 response counts as presence; the adapter never
// scrapes page content.
type SocialProfiles struct {
	client *http.Client
}

func NewSocialProfiles(client *http.Client) *SocialProfiles {
	if client == nil {
		client = defaultClient()
	}
	return &SocialProfiles{client: client}
}

func (p *SocialProfiles) Name() string { return "social_profiles" }

func (p *SocialProfiles) External() bool { return true }

func (p *SocialProfiles) Supports(targetType string) bool {
	return targetType == TargetUsername || targetType == TargetEmail
}

func (p *SocialProfiles) Invoke(ctx context.Context, target Target) ([]RawFinding, error) {
	handle := target.Value
	if target.Type == TargetEmail {
		handle, _, _ = strings.Cut(target.Value, "@")
	}
	if handle == "" {
		return nil, fmt.Errorf("empty handle")
	}

	var findings []RawFinding
	for _, platform := range socialPlatforms {
		if ctx.Err() != nil {
			return findings, ctx.Err()
		}
		profileURL := fmt.Sprintf(platform.urlFmt, url.PathEscape(handle))
		found, err := p.probe(ctx, profileURL)
		if err != nil {
			if ctx.Err() != nil {
				return findings, ctx.Err()
			}
			continue
		}
		if !found {
			continue
		}
		findings = append(findings, RawFinding{
			Kind:     "social_media",
			Severity: "low",
			URL:      profileURL,
			Evidence: []Pair{
				{Key: "platform", Value: platform.name},
				{Key: "handle", Value: handle},
				{Key: "profile_url", Value: profileURL},
			},
			Tags:       []string{"social", platform.name},
			Signals:    Signals{Fields: platform.fields},
			ObservedAt: time.Now().UTC(),
		})
	}
	return findings, nil
}

func (p *SocialProfiles) probe(ctx context.Context, profileURL string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, profileURL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("User-Agent", "Footprint/1.0 (Profile Checker)")

	resp, err := p.client.Do(req)
	if err != nil {
		return false, err
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// --- Breach Directory ---

// breachRecord is the shape returned by the breach lookup API.
type breachRecord struct {
	Name        string   `json:"Name"`
	Domain      string   `json:"Domain"`
	BreachDate  string   `json:"BreachDate"`
	DataClasses []string `json:"DataClasses"`
	IsVerified  bool     `json:"IsVerified"`
}

// BreachDirectory looks an email up in a breach database API. The lookup is
// idempotent, so transient failures are retried with capped backoff.
type BreachDirectory struct {
	baseURL string
	client  *http.Client
	policy  retry.Policy
}

func NewBreachDirectory(baseURL string, client *http.Client) *BreachDirectory {
	if baseURL == "" {
		baseURL = "https://haveibeenpwned.com/api/v3/breachedaccount"
	}
	if client == nil {
		client = defaultClient()
	}
	return &BreachDirectory{
		baseURL: baseURL,
		client:  client,
		policy:  retry.Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, Multiplier: 2},
	}
}

func (p *BreachDirectory) Name() string { return "breach_directory" }

func (p *BreachDirectory) External() bool { return true }

func (p *BreachDirectory) Supports(targetType string) bool {
	return targetType == TargetEmail
}

func (p *BreachDirectory) Invoke(ctx context.Context, target Target) ([]RawFinding, error) {
	lookupURL := p.baseURL + "/" + url.PathEscape(target.Value) + "?truncateResponse=false"

	var records []breachRecord
	err := p.policy.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", "Footprint/1.0 (Breach Lookup)")

		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		// 404 means the account is clean; not an error.
		if resp.StatusCode == http.StatusNotFound {
			records = nil
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("breach lookup returned %d", resp.StatusCode)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}
		return json.Unmarshal(body, &records)
	})
	if err != nil {
		return nil, fmt.Errorf("breach lookup: %w", err)
	}

	var findings []RawFinding
	for _, rec := range records {
		if rec.Name == "" {
			// Malformed record; reject at the edge.
			continue
		}
		severity := "high"
		for _, dc := range rec.DataClasses {
			if strings.EqualFold(dc, "passwords") {
				severity = "critical"
				break
			}
		}
		evidence := []Pair{
			{Key: "breach", Value: rec.Name},
			{Key: "domain", Value: rec.Domain},
			{Key: "breach_date", Value: rec.BreachDate},
			{Key: "data_classes", Value: strings.Join(rec.DataClasses, ", ")},
		}
		findings = append(findings, RawFinding{
			Kind:     "breach",
			Severity: severity,
			Evidence: evidence,
			Tags:     []string{"breach"},
			Signals: Signals{
				Fields:   rec.DataClasses,
				Verified: rec.IsVerified,
				Trusted:  true,
			},
			ObservedAt: time.Now().UTC(),
		})
	}
	return findings, nil
}

// --- Data Broker ---

// DataBroker aggregates people-search broker listing URLs for the target.
// No network calls: the value is the curated link set itself.
type DataBroker struct{}

func NewDataBroker() *DataBroker { return &DataBroker{} }

func (p *DataBroker) Name() string { return "data_broker" }

func (p *DataBroker) Supports(targetType string) bool { return true }

func (p *DataBroker) Invoke(ctx context.Context, target Target) ([]RawFinding, error) {
	query := url.QueryEscape(target.Value)

	brokers := []struct {
		name string
		url  string
	}{
		{"Spokeo", "https://www.spokeo.com/search?q=" + query},
		{"BeenVerified", "https://www.beenverified.com/rf/search?fullname=" + query},
		{"Whitepages", "https://www.whitepages.com/name/" + query},
		{"TruePeopleSearch", "https://www.truepeoplesearch.com/results?name=" + query},
		{"FastPeopleSearch", "https://www.fastpeoplesearch.com/name/" + query},
	}

	var findings []RawFinding
	for _, b := range brokers {
		findings = append(findings, RawFinding{
			Kind:     "identity",
			Severity: "medium",
			URL:      b.url,
			Evidence: []Pair{
				{Key: "broker", Value: b.name},
				{Key: "listing_url", Value: b.url},
			},
			Tags:       []string{"broker"},
			Signals:    Signals{Fields: []string{"listing"}},
			ObservedAt: time.Now().UTC(),
		})
	}
	return findings, nil
}

// --- Domain Reputation ---

var disposableDomains = map[string]bool{
	"mailinator.com":    true,
	"guerrillamail.com": true,
	"10minutemail.com":  true,
	"tempmail.com":      true,
	"yopmail.com":       true,
}

var freemailDomains = map[string]bool{
	"gmail.com":   true,
	"yahoo.com":   true,
	"outlook.com": true,
	"hotmail.com": true,
	"icloud.com":  true,
	"proton.me":   true,
}

// DomainReputation inspects the target email's domain: registrable domain,
// MX presence, and disposable/freemail classification.
type DomainReputation struct {
	resolver *net.Resolver
}

func NewDomainReputation() *DomainReputation {
	return &DomainReputation{resolver: net.DefaultResolver}
}

func (p *DomainReputation) Name() string { return "domain_reputation" }

func (p *DomainReputation) Supports(targetType string) bool {
	return targetType == TargetEmail
}

func (p *DomainReputation) Invoke(ctx context.Context, target Target) ([]RawFinding, error) {
	_, domain, ok := strings.Cut(target.Value, "@")
	if !ok || domain == "" {
		return nil, fmt.Errorf("no domain in %q", target.Value)
	}
	domain = strings.ToLower(domain)

	registrable, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		registrable = domain
	}

	evidence := []Pair{
		{Key: "domain", Value: domain},
		{Key: "registrable_domain", Value: registrable},
	}
	tags := []string{"domain"}
	severity := "info"

	switch {
	case disposableDomains[registrable]:
		evidence = append(evidence, Pair{Key: "classification", Value: "disposable"})
		tags = append(tags, "disposable")
		severity = "low"
	case freemailDomains[registrable]:
		evidence = append(evidence, Pair{Key: "classification", Value: "freemail"})
		tags = append(tags, "freemail")
	default:
		evidence = append(evidence, Pair{Key: "classification", Value: "custom"})
	}

	mx, err := p.resolver.LookupMX(ctx, domain)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err == nil && len(mx) > 0 {
		evidence = append(evidence, Pair{Key: "mx", Value: mx[0].Host})
	} else {
		evidence = append(evidence, Pair{Key: "mx", Value: "none"})
	}

	return []RawFinding{{
		Kind:       "domain_reputation",
		Severity:   severity,
		Evidence:   evidence,
		Tags:       tags,
		Signals:    Signals{Fields: []string{"domain", "mx"}, Trusted: true},
		ObservedAt: time.Now().UTC(),
	}}, nil
}

// --- Phone Intelligence ---

var phonePrefixes = []struct {
	prefix  string
	country string
}{
	{"+1", "US/CA"},
	{"+44", "UK"},
	{"+49", "DE"},
	{"+33", "FR"},
	{"+61", "AU"},
	{"+91", "IN"},
}

// PhoneIntel derives offline signals from a phone number: country prefix
// and reverse-lookup references.
type PhoneIntel struct{}

func NewPhoneIntel() *PhoneIntel { return &PhoneIntel{} }

func (p *PhoneIntel) Name() string { return "phone_intel" }

func (p *PhoneIntel) Supports(targetType string) bool {
	return targetType == TargetPhone
}

func (p *PhoneIntel) Invoke(ctx context.Context, target Target) ([]RawFinding, error) {
	number := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == '+' {
			return r
		}
		return -1
	}, target.Value)
	if len(number) < 7 {
		return nil, fmt.Errorf("number too short: %q", target.Value)
	}

	country := "unknown"
	for _, pp := range phonePrefixes {
		if strings.HasPrefix(number, pp.prefix) {
			country = pp.country
			break
		}
	}

	digits := strings.TrimPrefix(number, "+")
	return []RawFinding{{
		Kind:     "phone_intelligence",
		Severity: "low",
		URL:      "https://www.truecaller.com/search/us/" + url.PathEscape(digits),
		Evidence: []Pair{
			{Key: "number", Value: number},
			{Key: "country", Value: country},
			{Key: "digits", Value: fmt.Sprintf("%d", len(digits))},
		},
		Tags:       []string{"phone"},
		Signals:    Signals{Fields: []string{"number", "country"}},
		ObservedAt: time.Now().UTC(),
	}}, nil
}
