package util

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
)

// MaxSlugLength bounds generated workspace slugs
const MaxSlugLength = 48

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases input and collapses every run of other characters into a hyphen.
// When input yields nothing, fallback is used instead.
func Slugify(input, fallback string) (string, error) {
	slug := slugify(input)
	if slug == "" {
		slug = slugify(fallback)
	}
	if slug == "" {
		return "", domain.ErrInvalidSlug
	}
	return slug, nil
}

// WithSuffix appends a numeric suffix used to resolve slug clashes
func WithSuffix(slug string, n int) string {
	suffix := fmt.Sprintf("-%d", n)
	if len(slug)+len(suffix) > MaxSlugLength {
		slug = strings.TrimRight(slug[:MaxSlugLength-len(suffix)], "-")
	}
	return slug + suffix
}

func slugify(s string) string {
	lower := strings.ToLower(strings.TrimSpace(s))
	slug := nonSlugChars.ReplaceAllString(lower, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > MaxSlugLength {
		slug = strings.TrimRight(slug[:MaxSlugLength], "-")
	}
	return slug
}
