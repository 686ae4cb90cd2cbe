// Package task defines the unit of work that moves through the vault's
// stage directories. A task's identity is its file name; the directory it
// sits in is the authoritative state, and the status field inside the
// frontmatter is only a best-effort mirror of that location.

package task

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type is the closed set of task variants the pipeline understands.
// Anything unrecognized parses to TypeUnknown so a stray file can still be
// carried to a terminal stage instead of wedging a scan loop.
type Type string

const (
	TypeFileDrop    Type = "file_drop"
	TypeEmail       Type = "email_reply"
	TypeChatMessage Type = "chat_message"
	TypeSocialPost  Type = "social_post"
	TypePayment     Type = "payment"
	TypeGeneric     Type = "generic"
	TypeUnknown     Type = "unknown"
)

// ParseType maps a frontmatter value onto the closed variant set.
func ParseType(value string) Type {
	switch Type(strings.ToLower(strings.TrimSpace(value))) {
	case TypeFileDrop, TypeEmail, TypeChatMessage, TypeSocialPost, TypePayment, TypeGeneric:
		return Type(strings.ToLower(strings.TrimSpace(value)))
	default:
		return TypeUnknown
	}
}

// Status mirrors the stage a task currently occupies.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusDone     Status = "done"
	StatusFailed   Status = "failed"
)

// RiskLevel classifies how dangerous acting on a task would be. HIGH always
// forces the approval path regardless of what a reasoner said elsewhere.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// ParseRisk normalizes a frontmatter risk value, defaulting to MEDIUM.
func ParseRisk(value string) RiskLevel {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case string(RiskLow):
		return RiskLow
	case string(RiskHigh):
		return RiskHigh
	default:
		return RiskMedium
	}
}

// Task is the parsed form of one task file.
type Task struct {
	// Name is the file name inside its stage directory, without any path.
	Name      string
	Type      Type
	Status    Status
	Risk      RiskLevel
	CreatedAt time.Time
	// ExpiresAt is recorded on approval requests but never enforced by any
	// component. Kept inert on purpose.
	ExpiresAt time.Time
	// Header holds every frontmatter key verbatim, including the ones the
	// typed fields above were derived from.
	Header map[string]string
	// Body is the free text after the closing frontmatter fence.
	Body string
}

// Timestamp layout used in frontmatter values and file names.
const (
	TimeLayout = time.RFC3339
	nameLayout = "20060102_150405"
)

var unsafeNameChars = regexp.MustCompile(`[^\w\-.]`)

// NewName builds a unique stage file name: timestamp, type, and a short
// random suffix so concurrent producers cannot collide.
func NewName(now time.Time, typ Type, slug string) string {
	slug = unsafeNameChars.ReplaceAllString(strings.TrimSpace(slug), "_")
	if len(slug) > 40 {
		slug = slug[:40]
	}
	suffix := uuid.NewString()[:8]
	if slug == "" {
		return fmt.Sprintf("%s_%s_%s.md", now.Format(nameLayout), typ, suffix)
	}
	return fmt.Sprintf("%s_%s_%s_%s.md", now.Format(nameLayout), typ, slug, suffix)
}

// New assembles a task with the standard header fields populated.
func New(name string, typ Type, risk RiskLevel, now time.Time, body string) Task {
	t := Task{
		Name:      name,
		Type:      typ,
		Status:    StatusPending,
		Risk:      risk,
		CreatedAt: now,
		Header: map[string]string{
			"type":       string(typ),
			"status":     string(StatusPending),
			"risk_level": string(risk),
			"created":    now.Format(TimeLayout),
		},
		Body: body,
	}
	return t
}

// WithExpiry stamps an expiry header on an approval request. No component
// acts on it; it exists for the human reviewing the file.
func (t Task) WithExpiry(at time.Time) Task {
	t.ExpiresAt = at
	if t.Header == nil {
		t.Header = map[string]string{}
	}
	t.Header["expires"] = at.Format(TimeLayout)
	return t
}
