package validation

import (
	"github.com/devsoc/devsoc-backend/internal/common"
	"github.com/gabriel-vasile/mimetype"
)

const MaxProofSize = 5 << 20

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
}

// ProofFile describes the uploaded payment screenshot. Head holds the first
// bytes of the content, used to sniff the real type.
type ProofFile struct {
	Name         string
	Size         int64
	DeclaredType string
	Head         []byte
}

// Proof checks the payment screenshot and returns the sniffed content type.
// Both the declared type and the sniffed type must be allowed images.
func (v *Validator) Proof(f *ProofFile) (string, error) {
	if f == nil || f.Size <= 0 {
		return "", common.NewUserError(common.ErrValidation, "Payment screenshot is required")
	}
	if f.Size > MaxProofSize {
		return "", common.NewUserError(common.ErrValidation,
			"File size must be less than 5MB. Please compress your image and try again.")
	}

	const typeMsg = "Only JPEG, PNG, and WebP images are allowed. Please convert your file and try again."
	if !allowedImageTypes[f.DeclaredType] {
		return "", common.NewUserError(common.ErrValidation, typeMsg)
	}

	sniffed := mimetype.Detect(f.Head)
	for m := sniffed; m != nil; m = m.Parent() {
		if allowedImageTypes[m.String()] {
			return m.String(), nil
		}
	}
	return "", common.NewUserError(common.ErrValidation, typeMsg)
}
