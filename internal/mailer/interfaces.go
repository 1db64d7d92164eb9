package mailer

type Service interface {
	SendPasswordResetEmail(toEmail, toName, code string) error
}
