package access

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const otpSubject = "MediVault Consultation OTP"

func randomCode(digits int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}

func codesMatch(stored, submitted string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(strings.TrimSpace(submitted))) == 1
}

func displayName(name string) string {
	return cases.Title(language.English).String(strings.TrimSpace(name))
}

func otpMessage(patientName, providerName, code string, ttl time.Duration) string {
	return fmt.Sprintf(
		"Dear %s, your one-time OTP for allowing Dr. %s to view and record your consultation is: %s. This code is valid for %d minutes.",
		displayName(patientName), displayName(providerName), code, int(ttl.Minutes()),
	)
}
