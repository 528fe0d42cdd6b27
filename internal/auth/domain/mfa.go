package domain

// MFAEnrollment is returned when a principal starts TOTP enrolment.
type MFAEnrollment struct {
	Secret  string // base32 encoded TOTP secret
	URL     string // otpauth:// URL for QR code generation
	Issuer  string
	Account string // the principal's email
}
