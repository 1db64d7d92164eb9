package sms

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// TwilioSender sends SMS through the Twilio REST API.
type TwilioSender struct {
	AccountSID string
	AuthToken  string
	From       string
	client     *http.Client
}

func NewTwilioSender(accountSID, authToken, from string) *TwilioSender {
	return &TwilioSender{
		AccountSID: accountSID,
		AuthToken:  authToken,
		From:       from,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TwilioSender) SendPasswordResetSMS(toPhone, code string) error {
	body := fmt.Sprintf("Your password reset code is: %s. It expires in 10 minutes.", code)

	form := url.Values{}
	form.Set("From", t.From)
	form.Set("To", toPhone)
	form.Set("Body", body)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	endpoint := "https://api.twilio.com/2010-04-01/Accounts/" + t.AccountSID + "/Messages.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(t.AccountSID, t.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		raw, _ := io.ReadAll(res.Body)
		return &twilioHTTPError{Status: res.StatusCode, Body: string(raw)}
	}

	return nil
}

type twilioHTTPError struct {
	Status int
	Body   string
}

func (e *twilioHTTPError) Error() string {
	return fmt.Sprintf("twilio send failed: status %d", e.Status)
}
