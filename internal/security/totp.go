package security

import (
	"fmt"
	"strings"

	"github.com/pquerna/otp/totp"
)

// totpIssuer is the issuer label shown in authenticator apps.
const totpIssuer = "ChatDesk"

// GenerateTOTPSecret provisions a new TOTP secret for the account.
// It returns the shared secret and the otpauth:// provisioning URL.
func GenerateTOTPSecret(accountName string) (secret, url string, err error) {
	key, errGenerate := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: strings.TrimSpace(accountName),
	})
	if errGenerate != nil {
		return "", "", fmt.Errorf("security: generate totp secret: %w", errGenerate)
	}
	return key.Secret(), key.URL(), nil
}

// ValidateTOTP reports whether the passcode is valid for the secret.
func ValidateTOTP(passcode, secret string) bool {
	if strings.TrimSpace(passcode) == "" || strings.TrimSpace(secret) == "" {
		return false
	}
	return totp.Validate(strings.TrimSpace(passcode), secret)
}
