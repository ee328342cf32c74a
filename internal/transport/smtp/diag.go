package smtp

import (
	"errors"
	"net"
	"strings"
)

// Diag describes an SMTP failure.
type Diag struct {
	Code      string // auth|tls|dial|timeout|rate_limited|invalid_recipient|rejected|network|unknown
	Temporary bool
}

// Diagnose inspects err and classifies it. Reply codes are matched on the
// error text since servers word them differently.
func Diagnose(err error) Diag {
	if err == nil {
		return Diag{Code: "unknown"}
	}
	s := strings.ToLower(err.Error())

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Diag{Code: "timeout", Temporary: true}
	}
	if strings.Contains(s, "timeout") {
		return Diag{Code: "timeout", Temporary: true}
	}

	if strings.Contains(s, "connection refused") ||
		strings.Contains(s, "no such host") ||
		strings.Contains(s, "dial tcp") {
		return Diag{Code: "dial", Temporary: true}
	}

	if strings.Contains(s, "x509:") ||
		strings.Contains(s, "tls") && (strings.Contains(s, "handshake") || strings.Contains(s, "certificate")) {
		return Diag{Code: "tls"}
	}

	if strings.Contains(s, "5.7.8") || strings.Contains(s, "535") ||
		strings.Contains(s, "username and password not accepted") ||
		strings.Contains(s, "authentication failed") ||
		strings.Contains(s, "auth") && strings.Contains(s, "failed") {
		return Diag{Code: "auth"}
	}

	if strings.Contains(s, "4.7.0") ||
		strings.Contains(s, "rate limit") ||
		strings.Contains(s, "try again later") ||
		strings.Contains(s, "451") || strings.Contains(s, "421") {
		return Diag{Code: "rate_limited", Temporary: true}
	}

	if strings.Contains(s, "5.1.1") || strings.Contains(s, "user unknown") ||
		strings.Contains(s, "mailbox not found") || strings.Contains(s, "mailbox unavailable") {
		return Diag{Code: "invalid_recipient"}
	}

	if strings.Contains(s, "5.7.1") ||
		strings.Contains(s, "message rejected") ||
		strings.Contains(s, "dmarc") || strings.Contains(s, "spf") {
		return Diag{Code: "rejected"}
	}

	if errors.As(err, &ne) {
		return Diag{Code: "network", Temporary: true}
	}
	return Diag{Code: "unknown"}
}
