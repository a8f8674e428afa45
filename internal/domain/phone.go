package domain

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// NormalizePhone converts local and international mobile numbers into the
// 2547XXXXXXXX / 2541XXXXXXXX form expected by the push-payment gateway.
func NormalizePhone(raw string) (string, error) {
	p := strings.NewReplacer(" ", "", "-", "", "+", "").Replace(strings.TrimSpace(raw))
	if p == "" {
		return "", ErrPhoneRequired
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return "", errors.Wrapf(ErrInvalidInput, "phone number %q", raw)
		}
	}
	switch {
	case len(p) == 10 && p[0] == '0':
		p = "254" + p[1:]
	case len(p) == 9 && (p[0] == '7' || p[0] == '1'):
		p = "254" + p
	}
	if len(p) != 12 || !strings.HasPrefix(p, "254") || (p[3] != '7' && p[3] != '1') {
		return "", errors.Wrapf(ErrInvalidInput, "phone number %q", raw)
	}
	return p, nil
}
