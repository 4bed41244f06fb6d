package kyc

import (
	"fmt"
	"strings"
	"time"

	"github.com/academiahub/backend/core/tenant"
)

// DocumentType is the closed set of verification document kinds.
type DocumentType string

const (
	DocIDCard              DocumentType = "id_card"
	DocSchoolAuthorization DocumentType = "school_authorization"
	DocAddressProof        DocumentType = "address_proof"
	DocSchoolPhotos        DocumentType = "school_photos"
)

// RequiredTypes must all be present in a submission for it to be accepted.
var RequiredTypes = []DocumentType{DocIDCard, DocSchoolAuthorization, DocAddressProof, DocSchoolPhotos}

func (t DocumentType) Valid() bool {
	for _, rt := range RequiredTypes {
		if t == rt {
			return true
		}
	}
	return false
}

// Document is one uploaded verification document. The set is never mutated in
// place; a resubmission replaces it wholesale.
type Document struct {
	Type        DocumentType `json:"type"`
	FileRef     string       `json:"file_ref"`
	Description string       `json:"description,omitempty"`
	UploadedAt  time.Time    `json:"uploaded_at"` // UTC
}

// MissingTypesError reports an incomplete submission; handlers surface the
// missing type list to the client.
type MissingTypesError struct {
	Missing []DocumentType
}

func (e *MissingTypesError) Error() string {
	names := make([]string, len(e.Missing))
	for i, t := range e.Missing {
		names[i] = string(t)
	}
	return fmt.Sprintf("missing required documents: %s", strings.Join(names, ", "))
}

// MissingFrom returns the required types absent from docs, in canonical order.
func MissingFrom(docs []Document) []DocumentType {
	present := make(map[DocumentType]bool, len(docs))
	for _, d := range docs {
		present[d.Type] = true
	}
	var missing []DocumentType
	for _, rt := range RequiredTypes {
		if !present[rt] {
			missing = append(missing, rt)
		}
	}
	return missing
}

// StatusView is the tenant-facing snapshot of the KYC state.
type StatusView struct {
	Status          tenant.KYCStatus `json:"status"`
	SubmittedAt     time.Time        `json:"submitted_at"`
	VerifiedAt      time.Time        `json:"verified_at"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
	Documents       []Document       `json:"documents"`
}
