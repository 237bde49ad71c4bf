package captcha

import (
	"net/url"
	"strings"
)

// Detector reconhece, pela URL final de uma resposta, se o portal exigiu
// captcha ou se a verificação foi aceita.
type Detector struct {
	ChallengeMarker string
	SuccessMarker   string
}

// DefaultDetector usa as rotas do SIMASTER.
var DefaultDetector = Detector{
	ChallengeMarker: "captchasound_verification",
	SuccessMarker:   "beranda",
}

// IsChallenge indica que a resposta caiu na página de verificação.
func (d Detector) IsChallenge(u *url.URL) bool {
	if u == nil || d.ChallengeMarker == "" {
		return false
	}
	return strings.Contains(strings.ToLower(u.String()), d.ChallengeMarker)
}

// IsSolved indica que a resposta chegou na home autenticada.
func (d Detector) IsSolved(u *url.URL) bool {
	if u == nil || d.SuccessMarker == "" {
		return false
	}
	return strings.Contains(strings.ToLower(u.String()), d.SuccessMarker)
}
