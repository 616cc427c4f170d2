package bookgate

import (
	"io"
	"time"

	"github.com/google/uuid"
)

// Request DTOs

// FileUpload is an incoming file to be placed in object storage.
type FileUpload struct {
	FileName string
	MimeType string
	Reader   io.Reader
}

// CreateResourceRequest contains parameters for publishing a new
// resource. AudioPages[i] gives the page number for PageAudio[i], and
// likewise for video; the two slices must be the same length as their
// file slices.
type CreateResourceRequest struct {
	Title      string
	TargetRole Role
	Cover      *FileUpload
	Document   *FileUpload
	PageAudio  []FileUpload
	AudioPages []int
	PageVideo  []FileUpload
	VideoPages []int
}

// UpdateResourceRequest contains parameters for reworking an existing
// resource. KeepAudio and KeepVideo are the authoritative kept sets:
// any stored page media absent from them is removed once the update
// persists. New files are appended after the kept sets.
type UpdateResourceRequest struct {
	ID         uuid.UUID
	Title      string // empty keeps the current title
	TargetRole Role   // empty keeps the current audience
	Cover      *FileUpload
	Document   *FileUpload
	KeepAudio  []PageMedia
	KeepVideo  []PageMedia
	PageAudio  []FileUpload
	AudioPages []int
	PageVideo  []FileUpload
	VideoPages []int
}

// ItemKind names one addressable piece of a resource.
type ItemKind string

const (
	ItemAnswers           ItemKind = "answers"
	ItemMaterials         ItemKind = "materials"
	ItemAudio             ItemKind = "audio"
	ItemVideo             ItemKind = "video"
	ItemClassroomDocument ItemKind = "classroom-document"
	ItemClassroomMedia    ItemKind = "classroom-media"
	ItemGlossary          ItemKind = "glossary"
)

// DeleteResourceItemRequest removes one piece of a resource. Named
// groups (answers, materials) are addressed by Title, or by ExactURL to
// drop a single file out of a group. Paged media is addressed by
// PageNumber or ExactURL. Glossary entries are addressed by Title
// holding the term.
type DeleteResourceItemRequest struct {
	ResourceID uuid.UUID
	Kind       ItemKind
	Title      string
	PageNumber *int
	ExactURL   string
}

// AddMaterialsRequest appends a titled group of files to a resource's
// answer keys or teaching materials.
type AddMaterialsRequest struct {
	ResourceID uuid.UUID
	Kind       ItemKind // ItemAnswers or ItemMaterials
	Title      string
	Files      []FileUpload
}

// SetClassroomRequest uploads classroom companion files. A Document
// replaces the current classroom document; Media entries are appended
// with their page numbers from MediaPages.
type SetClassroomRequest struct {
	ResourceID uuid.UUID
	Document   *FileUpload
	Media      []FileUpload
	MediaPages []int
}

// GlossaryInput is one glossary entry to add, with an optional
// illustration.
type GlossaryInput struct {
	Term        string
	Description string
	Image       *FileUpload
}

// AddGlossaryRequest appends entries to a resource's glossary.
type AddGlossaryRequest struct {
	ResourceID uuid.UUID
	Entries    []GlossaryInput
}

// FileKind names a downloadable resource file.
type FileKind string

const (
	FileBook           FileKind = "book"
	FileAudio          FileKind = "audio"
	FileVideo          FileKind = "video"
	FileClassroomDoc   FileKind = "classroom-document"
	FileClassroomMedia FileKind = "classroom-media"
)

// OpenFileRequest identifies a resource file to stream. PageNumber is
// required for the paged kinds.
type OpenFileRequest struct {
	ResourceID uuid.UUID
	Kind       FileKind
	PageNumber *int
}

// IssueCodeRequest contains parameters for minting an activation code.
type IssueCodeRequest struct {
	ResourceID     uuid.UUID
	CodeValue      string
	MaxActivations int
	ExpiryDate     *time.Time
}

// UpdateCodeRequest adjusts a code's lifecycle fields. Nil pointers
// leave the current value in place; ClearExpiry drops an explicit
// expiry date.
type UpdateCodeRequest struct {
	CodeID      uuid.UUID
	IsActive    *bool
	ExpiryDate  *time.Time
	ClearExpiry bool
}

// RedeemRequest contains parameters for redeeming an activation code.
type RedeemRequest struct {
	CodeValue string
	UserID    uuid.UUID
	Role      Role
}
