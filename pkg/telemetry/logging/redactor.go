package logging

// RedactKey shortens a credential for logging: the first four characters
// survive, the rest is masked. Short values are fully masked.
func RedactKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****"
}
