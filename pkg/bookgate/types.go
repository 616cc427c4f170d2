package bookgate

import (
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the audience a resource is published for and the
// role a user presents when redeeming an activation code.
type Role string

const (
	RoleStudent Role = "Student"
	RoleTeacher Role = "Teacher"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher
}

// DefaultEntitlementDays is the implicit entitlement lifetime, counted
// from the moment of redemption, for codes that carry no explicit
// expiry date.
const DefaultEntitlementDays = 302

// PageMedia is a single audio or video file bound to a page of the
// resource's document.
type PageMedia struct {
	PageNumber int    `json:"page_number"`
	URL        string `json:"url"`
}

// MaterialGroup is a titled bundle of supporting files, such as answer
// keys or extra teaching material.
type MaterialGroup struct {
	Title string   `json:"title"`
	URLs  []string `json:"urls"`
}

// Classroom holds the optional classroom companion: a document plus
// page-bound media of its own.
type Classroom struct {
	DocumentURL string      `json:"document_url,omitempty"`
	Media       []PageMedia `json:"media,omitempty"`
}

// GlossaryEntry is a single term in a resource's glossary.
type GlossaryEntry struct {
	Term        string `json:"term"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url,omitempty"`
}

// Resource is a published content item: a book document with its cover
// and any per-page media, teacher material and classroom companions.
type Resource struct {
	ID          uuid.UUID       `json:"id"`
	Title       string          `json:"title"`
	TargetRole  Role            `json:"target_role"`
	CoverURL    string          `json:"cover_url,omitempty"`
	DocumentURL string          `json:"document_url,omitempty"`
	PageAudio   []PageMedia     `json:"page_audio,omitempty"`
	PageVideo   []PageMedia     `json:"page_video,omitempty"`
	Answers     []MaterialGroup `json:"answers,omitempty"`
	Materials   []MaterialGroup `json:"materials,omitempty"`
	Classroom   *Classroom      `json:"classroom,omitempty"`
	Glossary    []GlossaryEntry `json:"glossary,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ReferencedURLs returns every stored file URL the resource points at.
// Used when a resource is removed and its files must go with it.
func (r *Resource) ReferencedURLs() []string {
	var urls []string
	add := func(u string) {
		if u != "" {
			urls = append(urls, u)
		}
	}
	add(r.CoverURL)
	add(r.DocumentURL)
	for _, m := range r.PageAudio {
		add(m.URL)
	}
	for _, m := range r.PageVideo {
		add(m.URL)
	}
	for _, g := range r.Answers {
		for _, u := range g.URLs {
			add(u)
		}
	}
	for _, g := range r.Materials {
		for _, u := range g.URLs {
			add(u)
		}
	}
	if r.Classroom != nil {
		add(r.Classroom.DocumentURL)
		for _, m := range r.Classroom.Media {
			add(m.URL)
		}
	}
	for _, e := range r.Glossary {
		add(e.ImageURL)
	}
	return urls
}

// ActivationCode grants access to one resource to at most
// MaxActivations distinct users.
type ActivationCode struct {
	ID             uuid.UUID  `json:"id"`
	ResourceID     uuid.UUID  `json:"resource_id"`
	CodeValue      string     `json:"code_value"`
	MaxActivations int        `json:"max_activations"`
	ExpiryDate     *time.Time `json:"expiry_date,omitempty"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Expired reports whether the code carries an explicit expiry date in
// the past relative to now.
func (c *ActivationCode) Expired(now time.Time) bool {
	return c.ExpiryDate != nil && c.ExpiryDate.Before(now)
}

// ActivationGrant records one user's redemption of one activation
// code. A (code, user) pair is granted at most once.
type ActivationGrant struct {
	ID          uuid.UUID `json:"id"`
	CodeID      uuid.UUID `json:"code_id"`
	UserID      uuid.UUID `json:"user_id"`
	ActivatedAt time.Time `json:"activated_at"`
}

// CodeUsage pairs a code with its current redemption count and the
// title of the resource it unlocks, for admin listings.
type CodeUsage struct {
	Code          *ActivationCode `json:"code"`
	ResourceTitle string          `json:"resource_title"`
	CurrentUsers  int             `json:"current_users"`
}

// GrantRecord is an admin view of a single grant. CodeValue and
// ResourceTitle fall back to placeholders when the underlying records
// no longer exist.
type GrantRecord struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	CodeValue     string    `json:"code_value"`
	ResourceTitle string    `json:"resource_title"`
	ActivatedAt   time.Time `json:"activated_at"`
}

// CodeCheck is the outcome of a pre-redemption code inspection.
type CodeCheck struct {
	Code      *ActivationCode `json:"code"`
	Remaining int             `json:"remaining"`
}

// Entitlement is one resource a user currently has access to, together
// with the grant that conveys it. ExpiresAt mirrors the code's explicit
// expiry and is nil for codes that rely on the implicit lifetime.
type Entitlement struct {
	Resource    *Resource  `json:"resource"`
	ActivatedAt time.Time  `json:"activated_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// FileDownload is an open stream onto a stored resource file, ready to
// relay to a client.
type FileDownload struct {
	Body        io.ReadCloser
	ContentType string
	FileName    string
}

var codeValuePattern = regexp.MustCompile(`^[A-Z0-9]{4}(-[A-Z0-9]{4}){2,3}$`)

// NormalizeCodeValue trims surrounding whitespace and upper-cases the
// value. Lookups and format checks operate on the normalized form.
func NormalizeCodeValue(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

// ValidCodeValue reports whether v (already normalized) is a
// well-formed code value: three or four dash-separated groups of four
// characters from [A-Z0-9].
func ValidCodeValue(v string) bool {
	if len(v) != 14 && len(v) != 19 {
		return false
	}
	return codeValuePattern.MatchString(v)
}
