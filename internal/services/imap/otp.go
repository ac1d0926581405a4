package imap

import "regexp"

// codePattern matches a standalone numeric verification code. Vendors send
// 4 to 8 digit codes; shorter digit runs (years, ports) are excluded by the
// word boundaries and the minimum length.
var codePattern = regexp.MustCompile(`\b(\d{4,8})\b`)

// labeledPattern prefers a code that follows an explicit label, which avoids
// picking up unrelated numbers like order IDs elsewhere in the mail.
var labeledPattern = regexp.MustCompile(`(?i)(?:code|コード|認証番号|verification)\D{0,20}?(\d{4,8})`)

// ExtractCode pulls the verification code out of an email's subject and body.
// Returns the empty string when no plausible code is present.
func ExtractCode(text string) string {
	if m := labeledPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := codePattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}
