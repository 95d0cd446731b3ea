package service

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

// Validation limits.
const (
	MinNameLength    = 3
	MaxNameLength    = 50
	MaxCaptionLength = 300
)

// validEmail accepts a bare address ("a@x.com"), not the display-name forms
// net/mail also understands ("Alice <a@x.com>"), and requires a dotted
// domain.
func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	_, domain, ok := strings.Cut(email, "@")
	if !ok {
		return false
	}
	dot := strings.LastIndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}

func validNameLength(name string) bool {
	n := utf8.RuneCountInString(name)
	return n >= MinNameLength && n <= MaxNameLength
}

func captionTooLong(caption string) bool {
	return utf8.RuneCountInString(caption) > MaxCaptionLength
}
