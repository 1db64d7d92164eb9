package sms

import (
	"fmt"

	"github.com/nexlify/user-accounts/pkg/logger"
)

type DevSender struct{}

func NewDevSender() *DevSender {
	return &DevSender{}
}

func (d *DevSender) SendPasswordResetSMS(toPhone, code string) error {
	logger.Info("[DEV SMS] Password Reset SMS",
		"to", toPhone,
		"code", code,
	)

	fmt.Printf("\n"+
		"=================================================================\n"+
		"PASSWORD RESET SMS (DEV MODE)\n"+
		"=================================================================\n"+
		"To: %s\n"+
		"Reset Code: %s\n"+
		"=================================================================\n\n",
		toPhone, code)

	return nil
}
