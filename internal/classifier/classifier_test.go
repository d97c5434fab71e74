package classifier

import (
	"testing"
	"time"

	"github.com/ownspend/agent/pkg/api"
)

func testRules(t *testing.T) Rules {
	t.Helper()
	rules, err := DefaultRules()
	if err != nil {
		t.Fatalf("failed to load default rules: %v", err)
	}
	return rules
}

func TestDefaultRules(t *testing.T) {
	rules := testRules(t)

	if len(rules.BankSenderFragments) == 0 {
		t.Error("expected bank sender fragments in embedded rules")
	}
	if len(rules.PaymentApps) == 0 {
		t.Error("expected payment apps in embedded rules")
	}
	if len(rules.TransactionKeywords) == 0 {
		t.Error("expected transaction keywords in embedded rules")
	}
	if got := rules.PaymentApps["com.phonepe.app"]; got != "PhonePe" {
		t.Errorf("app name for com.phonepe.app: got %q, want %q", got, "PhonePe")
	}
}

func TestClassifySMS_SenderMatching(t *testing.T) {
	tests := []struct {
		name   string
		sender string
		body   string
		want   bool
	}{
		{"exact sender id", "HDFCBK", "Rs.500 debited from a/c XX1234", true},
		{"hyphenated sender", "HDFC-Bank", "Rs.500 debited from a/c XX1234", true},
		{"lowercase sender", "hdfcbank", "Rs.500 debited from a/c XX1234", true},
		{"sender with spaces", "AD HDFC BK", "Rs.500 debited", true},
		{"prefixed sender id", "VM-ICICIB", "INR 1,200.00 credited to your account", true},
		{"sbi short code", "ATMSBI", "Your a/c debited by Rs 250", true},
		{"unknown sender", "AMAZON", "Your order has shipped", false},
		{"personal number", "+919812345678", "hey, lunch today?", false},
		{"empty sender", "", "Rs.500 debited", false},
		{"empty body", "HDFCBK", "", false},
	}

	c := New(testRules(t))
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			event, accepted := c.ClassifySMS(tc.sender, tc.body)
			if accepted != tc.want {
				t.Fatalf("accepted: got %v, want %v", accepted, tc.want)
			}
			if !tc.want {
				if event != nil {
					t.Errorf("rejected SMS produced an event: %+v", event)
				}
				return
			}

			if event.SourceType != api.SourceSMS {
				t.Errorf("source type: got %q, want %q", event.SourceType, api.SourceSMS)
			}
			if event.SourceSender != tc.sender {
				t.Errorf("sender: got %q, want raw sender %q", event.SourceSender, tc.sender)
			}
			if event.SourcePackage != "" {
				t.Errorf("SMS event has a source package: %q", event.SourcePackage)
			}
			if event.RawText != tc.body {
				t.Errorf("raw text: got %q, want %q", event.RawText, tc.body)
			}
			if event.SyncStatus != api.StatusPending {
				t.Errorf("status: got %q, want %q", event.SyncStatus, api.StatusPending)
			}
		})
	}
}

func TestClassifyNotification(t *testing.T) {
	tests := []struct {
		name    string
		pkg     string
		title   string
		text    string
		bigText string
		want    bool
	}{
		{
			name:  "phonepe payment",
			pkg:   "com.phonepe.app",
			title: "Payment Successful",
			text:  "You paid ₹200 to Merchant X",
			want:  true,
		},
		{
			name:  "package not allow-listed",
			pkg:   "com.instagram.android",
			title: "Payment Successful",
			text:  "You paid ₹200 to Merchant X",
			want:  false,
		},
		{
			name:  "allow-listed package without keywords",
			pkg:   "com.phonepe.app",
			title: "Reminder",
			text:  "Complete your KYC today",
			want:  false,
		},
		{
			name: "empty text",
			pkg:  "com.phonepe.app",
			want: false,
		},
		{
			name:    "keyword only in big text",
			pkg:     "net.one97.paytm",
			title:   "Paytm",
			text:    "Tap to view",
			bigText: "Rs. 1,450 transferred to Ravi",
			want:    true,
		},
		{
			name:  "keyword case-insensitive",
			pkg:   "com.google.android.apps.nbu.paisa.user",
			title: "Google Pay",
			text:  "PAYMENT of INR 99 COMPLETED",
			want:  true,
		},
	}

	c := New(testRules(t))
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			event, accepted := c.ClassifyNotification(tc.pkg, tc.title, tc.text, tc.bigText)
			if accepted != tc.want {
				t.Fatalf("accepted: got %v, want %v", accepted, tc.want)
			}
			if !tc.want {
				return
			}

			if event.SourceType != api.SourceNotification {
				t.Errorf("source type: got %q, want %q", event.SourceType, api.SourceNotification)
			}
			if event.SourcePackage != tc.pkg {
				t.Errorf("source package: got %q, want %q", event.SourcePackage, tc.pkg)
			}
			if event.RawText == "" {
				t.Error("accepted notification has empty raw text")
			}
		})
	}
}

func TestClassifyNotification_AppNameResolution(t *testing.T) {
	rules := testRules(t)
	// Allow-list a package without a display name to exercise the fallback.
	rules.PaymentApps["com.example.wallet"] = ""
	c := New(rules)

	event, accepted := c.ClassifyNotification("com.phonepe.app", "", "You paid ₹50", "")
	if !accepted {
		t.Fatal("expected acceptance")
	}
	if event.SourceSender != "PhonePe" {
		t.Errorf("sender: got %q, want resolved app name %q", event.SourceSender, "PhonePe")
	}

	event, accepted = c.ClassifyNotification("com.example.wallet", "", "You paid ₹50", "")
	if !accepted {
		t.Fatal("expected acceptance")
	}
	if event.SourceSender != "com.example.wallet" {
		t.Errorf("sender: got %q, want raw package fallback", event.SourceSender)
	}
}

func TestCombineNotificationText(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		text    string
		bigText string
		want    string
	}{
		{"all parts", "Title", "Short", "Expanded", "Title Short Expanded"},
		{"big text repeats short text", "Title", "Same", "Same", "Title Same"},
		{"title only", "Title", "", "", "Title"},
		{"all empty", "", "", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CombineNotificationText(tc.title, tc.text, tc.bigText)
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClassifySMS_ReceivedAt(t *testing.T) {
	c := New(testRules(t))
	fixed := time.Date(2024, 3, 10, 9, 30, 0, 0, time.Local)
	c.now = func() time.Time { return fixed }

	event, accepted := c.ClassifySMS("HDFCBK", "Rs.500 debited")
	if !accepted {
		t.Fatal("expected acceptance")
	}
	if event.ReceivedAt != fixed.UnixMilli() {
		t.Errorf("receivedAt: got %d, want %d", event.ReceivedAt, fixed.UnixMilli())
	}
}
