package oauth

// MaskSecret shows the first 3 and last 4 characters of a secret, or "***"
// when it is too short to reveal anything safely.
func MaskSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:3] + "***" + secret[len(secret)-4:]
}
