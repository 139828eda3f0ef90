package model

// MailMessage is one out-of-band message. HTML is the rendered body.
type MailMessage struct {
	To      string
	Subject string
	HTML    string
}
