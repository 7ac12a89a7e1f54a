package triage

import (
	"regexp"
	"strings"

	"github.com/linnemanlabs/docket/internal/ticket"
)

// KeywordSets drives the deterministic rule classifier. Phrases match
// case-insensitively on word boundaries.
type KeywordSets struct {
	// Issue types, checked in priority order outage > account > billing > bug > feature_request.
	Outage         []string `yaml:"outage"`
	Account        []string `yaml:"account"`
	Billing        []string `yaml:"billing"`
	Bug            []string `yaml:"bug"`
	FeatureRequest []string `yaml:"feature_request"`

	// Urgency raises the floor to high; Critical forces critical.
	Urgent   []string `yaml:"urgent"`
	Critical []string `yaml:"critical"`

	VeryNegative []string `yaml:"very_negative"`
	Negative     []string `yaml:"negative"`
	Positive     []string `yaml:"positive"`

	Churn         []string `yaml:"churn"`
	Legal         []string `yaml:"legal"`
	SocialMedia   []string `yaml:"social_media"`
	ChargeDispute []string `yaml:"charge_dispute"`
	Compliance    []string `yaml:"compliance"`

	// Products are checked in order; the first match names the product.
	Products []ProductKeywords `yaml:"products"`
}

// ProductKeywords maps phrases to a product name.
type ProductKeywords struct {
	Product  string   `yaml:"product"`
	Keywords []string `yaml:"keywords"`
}

// DefaultKeywordSets returns the built-in phrase lists.
func DefaultKeywordSets() KeywordSets {
	return KeywordSets{
		Outage: []string{
			"down", "outage", "unavailable", "service unavailable", "not responding", "not loading",
			"503", "502", "error 500", "500 error", "timing out", "timed out", "unreachable",
		},
		Account: []string{
			"password", "login", "log in", "sign in", "signin", "locked out", "2fa", "two-factor",
			"permission", "permissions", "username", "account access", "reset my", "sso",
		},
		Billing: []string{
			"billing", "bill", "billed", "invoice", "charge", "charged", "payment", "subscription",
			"refund", "price", "pricing", "receipt", "credit card", "overcharged",
		},
		Bug: []string{
			"bug", "error", "errors", "broken", "crash", "crashes", "crashed", "doesn't work",
			"does not work", "not working", "glitch", "exception", "fails", "failing",
		},
		FeatureRequest: []string{
			"feature", "feature request", "suggestion", "would be nice", "add support for",
			"idea", "roadmap", "wish", "could you add",
		},
		Urgent: []string{
			"down", "cannot access", "can't access", "all users", "urgent", "asap", "emergency",
			"immediately", "critical", "production", "blocking", "losing money", "losing customers",
		},
		Critical: []string{
			"security breach", "data breach", "data loss", "data leak", "production down",
			"system down", "completely down",
		},
		VeryNegative: []string{
			"unacceptable", "worst", "terrible", "horrible", "furious", "ridiculous", "outraged",
			"disgusted", "useless", "scam", "pathetic",
		},
		Negative: []string{
			"frustrated", "frustrating", "disappointed", "annoyed", "angry", "unhappy", "not happy",
			"upset", "fed up",
		},
		Positive: []string{
			"thanks", "thank you", "appreciate", "great", "love", "amazing", "awesome", "excellent",
		},
		Churn: []string{
			"cancel", "canceling", "cancelling", "cancellation", "switch provider", "switching to",
			"competitor", "leaving", "not worth", "waste of money", "refund", "close my account",
		},
		Legal: []string{
			"lawyer", "lawyers", "attorney", "legal action", "lawsuit", "sue", "suing", "court",
		},
		SocialMedia: []string{
			"twitter", "tweet", "post about", "tell everyone", "social media", "linkedin",
			"facebook", "bad review", "negative review", "go public",
		},
		ChargeDispute: []string{
			"chargeback", "dispute", "disputing", "unauthorized charge", "fraud", "fraudulent",
		},
		Compliance: []string{
			"gdpr", "hipaa", "soc 2", "soc2", "pci", "data protection", "compliance",
		},
		Products: []ProductKeywords{
			{Product: "dashboard", Keywords: []string{"dashboard", "ui", "web app"}},
			{Product: "api", Keywords: []string{"api", "endpoint", "webhook", "sdk", "rate limit"}},
			{Product: "database", Keywords: []string{"database", "db", "query", "replica"}},
			{Product: "authentication", Keywords: []string{"password", "login", "sso", "2fa", "sign in"}},
			{Product: "billing", Keywords: []string{"invoice", "billing", "subscription", "payment"}},
			{Product: "integrations", Keywords: []string{"integration", "slack", "jira", "zapier"}},
			{Product: "mobile", Keywords: []string{"mobile", "ios", "android", "app store"}},
		},
	}
}

// phraseSet matches any of its phrases as whole words.
type phraseSet struct {
	re *regexp.Regexp
}

func compilePhrases(phrases []string) phraseSet {
	if len(phrases) == 0 {
		return phraseSet{}
	}
	alts := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		// allow any whitespace run between words of a phrase
		words := strings.Fields(p)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		alts = append(alts, strings.Join(words, `\s+`))
	}
	if len(alts) == 0 {
		return phraseSet{}
	}
	return phraseSet{re: regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(?:` + strings.Join(alts, "|") + `)(?:$|[^\p{L}\p{N}])`)}
}

func (p phraseSet) match(text string) bool {
	return p.re != nil && p.re.MatchString(text)
}

func compileEach(phrases []string) []phraseSet {
	out := make([]phraseSet, 0, len(phrases))
	for _, p := range phrases {
		out = append(out, compilePhrases([]string{p}))
	}
	return out
}

// countDistinct returns how many of the sets match text.
func countDistinct(sets []phraseSet, text string) int {
	n := 0
	for _, s := range sets {
		if s.match(text) {
			n++
		}
	}
	return n
}

// RuleClassifier classifies tickets with keyword rules only. It is a pure
// function of the ticket's text, metadata and tier.
type RuleClassifier struct {
	outage   phraseSet
	account  phraseSet
	billing  phraseSet
	bug      phraseSet
	feature  phraseSet
	urgent   phraseSet
	critical phraseSet

	veryNegative phraseSet
	negative     phraseSet
	positive     phraseSet
	praise       []phraseSet

	churn   phraseSet
	legal   phraseSet
	social  phraseSet
	dispute phraseSet
	comply  phraseSet

	products []productMatcher
}

type productMatcher struct {
	name string
	set  phraseSet
}

// NewRuleClassifier compiles the keyword sets.
func NewRuleClassifier(sets KeywordSets) *RuleClassifier {
	rc := &RuleClassifier{
		outage:       compilePhrases(sets.Outage),
		account:      compilePhrases(sets.Account),
		billing:      compilePhrases(sets.Billing),
		bug:          compilePhrases(sets.Bug),
		feature:      compilePhrases(sets.FeatureRequest),
		urgent:       compilePhrases(sets.Urgent),
		critical:     compilePhrases(sets.Critical),
		veryNegative: compilePhrases(sets.VeryNegative),
		negative:     compilePhrases(sets.Negative),
		positive:     compilePhrases(sets.Positive),
		praise:       compileEach(sets.Positive),
		churn:        compilePhrases(sets.Churn),
		legal:        compilePhrases(sets.Legal),
		social:       compilePhrases(sets.SocialMedia),
		dispute:      compilePhrases(sets.ChargeDispute),
		comply:       compilePhrases(sets.Compliance),
	}
	for _, p := range sets.Products {
		rc.products = append(rc.products, productMatcher{name: p.Product, set: compilePhrases(p.Keywords)})
	}
	return rc
}

// Classify applies the keyword rules to t.
func (rc *RuleClassifier) Classify(t *ticket.Ticket) Classification {
	text := normalizeText(t.Text())

	issue := rc.issueType(text)
	return Classification{
		Urgency:     rc.urgency(text, issue, t.IsEnterprise()),
		Product:     rc.product(text),
		IssueType:   issue,
		Sentiment:   rc.sentiment(text),
		RiskSignals: rc.RiskHints(t),
		Reasoning:   "classified by keyword rules",
		Confidence:  RuleConfidence,
	}
}

// RiskHints returns the risk signals detectable from text and tier alone.
func (rc *RuleClassifier) RiskHints(t *ticket.Ticket) []RiskSignal {
	text := normalizeText(t.Text())

	var risks []RiskSignal
	if rc.churn.match(text) {
		risks = append(risks, RiskChurn)
	}
	if rc.dispute.match(text) {
		risks = append(risks, RiskChargeDispute)
	}
	if rc.legal.match(text) {
		risks = append(risks, RiskLegalThreat)
	}
	if rc.social.match(text) {
		risks = append(risks, RiskSocialMedia)
	}
	if rc.comply.match(text) {
		risks = append(risks, RiskComplianceIssue)
	}
	if t.IsEnterprise() {
		risks = append(risks, RiskHighValueAccount)
	}
	return MergeRisks(risks)
}

func (rc *RuleClassifier) issueType(text string) IssueType {
	switch {
	case rc.outage.match(text):
		return IssueOutage
	case rc.account.match(text):
		return IssueAccount
	case rc.billing.match(text):
		return IssueBilling
	case rc.bug.match(text):
		return IssueBug
	case rc.feature.match(text):
		return IssueFeatureRequest
	}
	return IssueAccount
}

func (rc *RuleClassifier) urgency(text string, issue IssueType, enterprise bool) Urgency {
	u := UrgencyMedium
	if issue == IssueFeatureRequest {
		u = UrgencyLow
	}
	if rc.urgent.match(text) {
		u = u.AtLeast(UrgencyHigh)
	}
	if rc.critical.match(text) {
		u = UrgencyCritical
	}
	if enterprise {
		if rc.outage.match(text) {
			u = UrgencyCritical
		}
		u = u.AtLeast(UrgencyMedium)
	}
	return u
}

func (rc *RuleClassifier) sentiment(text string) Sentiment {
	switch {
	case rc.veryNegative.match(text):
		return SentimentVeryNegative
	case rc.negative.match(text):
		return SentimentNegative
	case countDistinct(rc.praise, text) >= 2:
		return SentimentVeryPositive
	case rc.positive.match(text):
		return SentimentPositive
	}
	return SentimentNeutral
}

func (rc *RuleClassifier) product(text string) string {
	for _, p := range rc.products {
		if p.set.match(text) {
			return p.name
		}
	}
	return ""
}

// normalizeText folds typographic apostrophes so "can’t" matches "can't".
func normalizeText(s string) string {
	return strings.NewReplacer("’", "'", "‘", "'").Replace(s)
}
