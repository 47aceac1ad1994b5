package graph

import (
	"encoding/base64"

	"github.com/shineum/smtp-mailer-lite/internal/email"
	"github.com/shineum/smtp-mailer-lite/internal/person"
)

// sendMailRequest is the top-level request body for the Graph API sendMail endpoint.
type sendMailRequest struct {
	Message         sendMailMessage `json:"message"`
	SaveToSentItems bool            `json:"saveToSentItems"`
}

// sendMailMessage represents the message portion of a sendMail request.
type sendMailMessage struct {
	Subject      string            `json:"subject"`
	Body         messageBody       `json:"body"`
	From         *recipient        `json:"from,omitempty"`
	ToRecipients []recipient       `json:"toRecipients"`
	ReplyTo      []recipient       `json:"replyTo,omitempty"`
	Attachments  []graphAttachment `json:"attachments,omitempty"`
}

// messageBody represents the body of an email message.
type messageBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// recipient represents an email recipient.
type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

// emailAddress represents an email address in a Graph API request.
type emailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// graphAttachment represents a file attachment in a Graph API request.
type graphAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

// graphErrorResponse represents an error response from the Graph API.
type graphErrorResponse struct {
	Error graphError `json:"error"`
}

// graphError represents the error detail in a Graph API error response.
type graphError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toRecipient(p person.Person) recipient {
	return recipient{EmailAddress: emailAddress{Address: p.Email(), Name: p.Name()}}
}

// buildSendMailRequest converts an email.Email into a Graph API sendMail
// request body. Graph carries a single body, so HTML wins when present.
func buildSendMailRequest(msg *email.Email) *sendMailRequest {
	body := messageBody{
		ContentType: "text",
		Content:     msg.TextBody,
	}
	if msg.IsHTML() {
		body.ContentType = "html"
		body.Content = msg.HTMLBody
	}

	from := toRecipient(msg.From.Person)

	toRecipients := make([]recipient, 0, len(msg.To))
	for _, r := range msg.To {
		toRecipients = append(toRecipients, toRecipient(r.Person))
	}

	var replyTo []recipient
	for _, p := range msg.ReplyTo {
		replyTo = append(replyTo, toRecipient(p))
	}

	var attachments []graphAttachment
	for _, att := range msg.Attachments {
		attachments = append(attachments, graphAttachment{
			ODataType:    "#microsoft.graph.fileAttachment",
			Name:         att.Filename,
			ContentType:  att.ContentType,
			ContentBytes: base64.StdEncoding.EncodeToString(att.Content),
		})
	}

	return &sendMailRequest{
		Message: sendMailMessage{
			Subject:      msg.Subject,
			Body:         body,
			From:         &from,
			ToRecipients: toRecipients,
			ReplyTo:      replyTo,
			Attachments:  attachments,
		},
		SaveToSentItems: true,
	}
}
