package model

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeHandle returns the NFC form of a handle with surrounding space removed.
func NormalizeHandle(handle string) string {
	return norm.NFC.String(strings.TrimSpace(handle))
}

// SameHandle reports whether two handles name the same user.
// Empty handles never match.
func SameHandle(a, b string) bool {
	na, nb := NormalizeHandle(a), NormalizeHandle(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb
}

// CreatorID derives the creator identifier used by subscriptions from an
// author handle by stripping a single leading '@'.
func CreatorID(handle string) string {
	return strings.TrimPrefix(NormalizeHandle(handle), "@")
}
