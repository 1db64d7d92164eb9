package sms

// Sender delivers a password reset code over SMS.
type Sender interface {
	SendPasswordResetSMS(toPhone, code string) error
}
