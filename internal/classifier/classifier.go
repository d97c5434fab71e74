// Package classifier decides whether a raw SMS or notification is a
// finance-relevant event and normalizes accepted ones into captured events.
package classifier

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ownspend/agent/pkg/api"
)

//go:embed rules.json
var defaultRulesJSON []byte

// Rules configures the classifier.
type Rules struct {
	// BankSenderFragments are matched against the normalized SMS sender
	// (uppercased, hyphens and spaces stripped) as substrings.
	BankSenderFragments []string `json:"bankSenderFragments"`

	// PaymentApps maps allow-listed notification package identifiers to
	// human-readable app names.
	PaymentApps map[string]string `json:"paymentApps"`

	// TransactionKeywords are matched case-insensitively against the
	// combined notification text.
	TransactionKeywords []string `json:"transactionKeywords"`
}

// DefaultRules returns the embedded rule set.
func DefaultRules() (Rules, error) {
	var r Rules
	if err := json.Unmarshal(defaultRulesJSON, &r); err != nil {
		return Rules{}, fmt.Errorf("parsing embedded rules: %w", err)
	}
	return r, nil
}

// Classifier applies the rule set to raw captured text.
type Classifier struct {
	rules Rules
	// now is swapped out in tests.
	now func() time.Time
}

// New creates a classifier with the given rules.
func New(rules Rules) *Classifier {
	return &Classifier{rules: rules, now: time.Now}
}

// ClassifySMS inspects an incoming SMS. It returns the normalized event and
// true when the sender matches a known financial institution, or nil and
// false otherwise. Rejection is silent: no record, no error.
func (c *Classifier) ClassifySMS(sender, body string) (*api.CapturedEvent, bool) {
	if sender == "" || body == "" {
		return nil, false
	}
	if !c.isBankSender(sender) {
		return nil, false
	}

	return &api.CapturedEvent{
		SourceType:   api.SourceSMS,
		SourceSender: sender,
		RawText:      body,
		ReceivedAt:   c.now().UnixMilli(),
		SyncStatus:   api.StatusPending,
	}, true
}

// ClassifyNotification inspects a posted notification. Acceptance requires
// the originating package to be allow-listed AND the combined text to
// contain at least one transaction keyword.
func (c *Classifier) ClassifyNotification(pkg, title, text, bigText string) (*api.CapturedEvent, bool) {
	appName, allowed := c.rules.PaymentApps[pkg]
	if !allowed {
		return nil, false
	}
	if appName == "" {
		appName = pkg
	}

	fullText := CombineNotificationText(title, text, bigText)
	if fullText == "" {
		return nil, false
	}
	if !c.hasTransactionKeyword(fullText) {
		return nil, false
	}

	return &api.CapturedEvent{
		SourceType:    api.SourceNotification,
		SourceSender:  appName,
		SourcePackage: pkg,
		RawText:       fullText,
		ReceivedAt:    c.now().UnixMilli(),
		SyncStatus:    api.StatusPending,
	}, true
}

// isBankSender matches the normalized sender against the configured
// fragments. Matching is case-insensitive and hyphen/space-insensitive, so
// "HDFC-Bank" and "hdfcbank" both match the "HDFC" fragment.
func (c *Classifier) isBankSender(sender string) bool {
	normalized := strings.ToUpper(sender)
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, " ", "")

	for _, fragment := range c.rules.BankSenderFragments {
		if strings.Contains(normalized, fragment) {
			return true
		}
	}
	return false
}

func (c *Classifier) hasTransactionKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range c.rules.TransactionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// CombineNotificationText joins the title, short text and expanded text of a
// notification, dropping the expanded text when it merely repeats the short
// text.
func CombineNotificationText(title, text, bigText string) string {
	var b strings.Builder
	if title != "" {
		b.WriteString(title)
		b.WriteString(" ")
	}
	if text != "" {
		b.WriteString(text)
		b.WriteString(" ")
	}
	if bigText != "" && bigText != text {
		b.WriteString(bigText)
	}
	return strings.TrimSpace(b.String())
}
