package basket

import "fmt"

// Status is the lifecycle state of a basket. A basket is created ACTIVE and
// becomes PAID exactly once; a PAID basket is immutable (item mutations are
// silently ignored by the reducer).
type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusPaid   Status = "PAID"
)

// Origin tags how an item entered local state. Optimistic entries are
// placeholders awaiting server confirmation; a confirmed entry for the same
// product replaces the optimistic one wholesale.
type Origin string

const (
	OriginOptimistic Origin = "optimistic"
	OriginConfirmed  Origin = "confirmed"
)

// Item is a single basket line. ID is server-assigned once persisted and may
// be empty for optimistic entries.
type Item struct {
	ID          string `json:"id,omitempty"`
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	Price       Money  `json:"price"`
	Origin      Origin `json:"origin,omitempty"`
}

// Subtotal is price × quantity for this line.
func (i Item) Subtotal() Money {
	return i.Price.Mul(i.Quantity)
}

// Customer is an optional customer reference attached to the basket.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Basket is the single active transaction for a terminal session.
// TotalAmount is derived from Items and never independently mutated.
type Basket struct {
	ID          string    `json:"basketId"`
	Status      Status    `json:"status"`
	EmployeeID  string    `json:"employeeId"`
	Customer    *Customer `json:"customer,omitempty"`
	Items       []Item    `json:"items"`
	TotalAmount Money     `json:"totalAmount"`
}

// RestrictedItem is a product blocked pending age verification. Quantity and
// price are carried through the verification pipeline so the item can be
// submitted for addition once verification succeeds.
type RestrictedItem struct {
	ProductID  string `json:"productId"`
	Name       string `json:"name"`
	MinimumAge int    `json:"minimumAge"`
	Category   string `json:"category,omitempty"`
	Quantity   int    `json:"quantity,omitempty"`
	Price      Money  `json:"price,omitempty"`
}

// VerificationState is the age-verification sub-state-machine.
//
// pending is the optimistic wait between an add request and the server's
// confirmation of a restriction; it auto-expires back to idle if no
// confirming event arrives. verified and failed are per-attempt terminal
// states that transition back to idle.
type VerificationState string

const (
	VerificationIdle      VerificationState = "idle"
	VerificationPending   VerificationState = "pending"
	VerificationRequired  VerificationState = "required"
	VerificationVerifying VerificationState = "verifying"
	VerificationVerified  VerificationState = "verified"
	VerificationFailed    VerificationState = "failed"
)

// PaymentState is the payment workflow machine: idle → processing →
// {completed | failed}.
type PaymentState string

const (
	PaymentIdle       PaymentState = "idle"
	PaymentProcessing PaymentState = "processing"
	PaymentCompleted  PaymentState = "completed"
	PaymentFailed     PaymentState = "failed"
)

// RecommendationStatus tracks the lifecycle of a surfaced recommendation.
type RecommendationStatus string

const (
	RecommendationPending  RecommendationStatus = "PENDING"
	RecommendationAccepted RecommendationStatus = "ACCEPTED"
	RecommendationRejected RecommendationStatus = "REJECTED"
)

// Recommendation is a product suggestion pushed by the recommendations
// channel. At most one recommendation per recommended product id is surfaced
// at a time.
type Recommendation struct {
	ID          string               `json:"id"`
	ProductID   string               `json:"recommendedProductId"`
	ProductName string               `json:"recommendedProductName"`
	Price       Money                `json:"recommendedPrice"`
	Reason      string               `json:"reason"`
	Status      RecommendationStatus `json:"status"`
}

// Severity orders fraud alerts by escalation.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "LOW",
	SeverityMedium:   "MEDIUM",
	SeverityHigh:     "HIGH",
	SeverityCritical: "CRITICAL",
}

// String returns the wire name of the severity.
func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// ParseSeverity maps a wire severity name to its ordered value.
func ParseSeverity(name string) (Severity, error) {
	for s, n := range severityNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q", name)
}

// MarshalJSON encodes the severity as its wire name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON decodes a wire severity name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	name := string(data)
	if len(name) >= 2 && name[0] == '"' {
		name = name[1 : len(name)-1]
	}
	parsed, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// FraudAlert is an inbound fraud notification awaiting operator
// acknowledgment. Alerts are never mutated; re-delivery of the same AlertID
// supersedes the earlier copy.
type FraudAlert struct {
	AlertID   string            `json:"alert_id"`
	RuleID    string            `json:"rule_id"`
	Severity  Severity          `json:"severity"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// VerificationMethod is how the operator verified a customer's age.
type VerificationMethod string

const (
	MethodManualCheck VerificationMethod = "MANUAL_CHECK"
	MethodIDScanner   VerificationMethod = "ID_SCANNER"
	MethodBiometric   VerificationMethod = "BIOMETRIC"
)

// DefaultMinimumAge applies when neither pending items nor the verification
// event carry an explicit minimum.
const DefaultMinimumAge = 18
