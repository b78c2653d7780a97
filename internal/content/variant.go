package content

import (
	"fmt"
	"regexp"

	domainerrors "github.com/buruapp/buru-server/internal/errors"
)

// Variant names a representation of stored content. Only Original is ever
// written by this package; derivatives are produced by an external service
// that writes into the same layout.
type Variant string

// Well-known variants.
const (
	Original Variant = "original"
	Sample   Variant = "sample"
)

var sizeVariantRe = regexp.MustCompile(`^([1-9][0-9]{0,4})x([1-9][0-9]{0,4})$`)

// ParseVariant validates a variant label: "original", "sample" or "WxH".
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case Original, Sample:
		return Variant(s), nil
	}
	if sizeVariantRe.MatchString(s) {
		return Variant(s), nil
	}
	return "", domainerrors.InvalidArgumentf("unknown variant %q", s)
}

// Sized builds a "WxH" variant.
func Sized(width, height int) Variant {
	return Variant(fmt.Sprintf("%dx%d", width, height))
}
