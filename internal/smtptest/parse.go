package smtptest

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
)

// Message is a parsed RFC 5322 message.
type Message struct {
	Header      mail.Header
	From        *mail.Address
	To          []*mail.Address
	ReplyTo     []*mail.Address
	Subject     string
	MessageID   string
	ContentType string
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// Attachment is a decoded attachment part.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

var wordDecoder = new(mime.WordDecoder)

// Parse parses raw message data, decoding multipart bodies, transfer
// encodings and RFC 2047 encoded headers.
func Parse(raw []byte) (*Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	result := &Message{
		Header:    msg.Header,
		MessageID: msg.Header.Get("Message-Id"),
	}

	if result.Subject, err = wordDecoder.DecodeHeader(msg.Header.Get("Subject")); err != nil {
		return nil, fmt.Errorf("failed to decode subject: %w", err)
	}
	if from := msg.Header.Get("From"); from != "" {
		if result.From, err = mail.ParseAddress(from); err != nil {
			return nil, fmt.Errorf("failed to parse From: %w", err)
		}
	}
	if result.To, err = addressList(msg.Header, "To"); err != nil {
		return nil, err
	}
	if result.ReplyTo, err = addressList(msg.Header, "Reply-To"); err != nil {
		return nil, err
	}

	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to parse content type %q: %w", contentType, err)
	}
	result.ContentType = mediaType

	if strings.HasPrefix(mediaType, "multipart/") {
		if err := parseMultipart(msg.Body, params["boundary"], result); err != nil {
			return nil, fmt.Errorf("failed to parse multipart message: %w", err)
		}
		return result, nil
	}

	body, err := decodeBody(msg.Body, msg.Header.Get("Content-Transfer-Encoding"))
	if err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}
	setBody(result, mediaType, body)

	return result, nil
}

// parseMultipart walks a multipart body, recursing into nested multiparts.
func parseMultipart(body io.Reader, boundary string, result *Message) error {
	if boundary == "" {
		return fmt.Errorf("missing boundary")
	}

	reader := multipart.NewReader(body, boundary)
	for {
		// NextPart strips and applies quoted-printable transfer encoding.
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read next part: %w", err)
		}

		partContentType := part.Header.Get("Content-Type")
		if partContentType == "" {
			partContentType = "text/plain"
		}
		mediaType, params, err := mime.ParseMediaType(partContentType)
		if err != nil {
			return fmt.Errorf("failed to parse part content type %q: %w", partContentType, err)
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			if err := parseMultipart(part, params["boundary"], result); err != nil {
				return err
			}
			continue
		}

		content, err := decodeBody(part, part.Header.Get("Content-Transfer-Encoding"))
		if err != nil {
			return fmt.Errorf("failed to read %s part: %w", mediaType, err)
		}

		disposition := part.Header.Get("Content-Disposition")
		if strings.HasPrefix(disposition, "attachment") || part.FileName() != "" {
			result.Attachments = append(result.Attachments, Attachment{
				Filename:    part.FileName(),
				ContentType: mediaType,
				Content:     content,
			})
			continue
		}

		setBody(result, mediaType, content)
	}
}

func setBody(result *Message, mediaType string, body []byte) {
	switch mediaType {
	case "text/html":
		if result.HTMLBody == "" {
			result.HTMLBody = string(body)
		}
	default:
		if result.TextBody == "" {
			result.TextBody = string(body)
		}
	}
}

// decodeBody reads r, undoing base64 or quoted-printable transfer encoding.
func decodeBody(r io.Reader, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		raw, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		cleaned := strings.NewReplacer("\r", "", "\n", "").Replace(string(raw))
		return base64.StdEncoding.DecodeString(cleaned)
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(r))
	default:
		return io.ReadAll(r)
	}
}

func addressList(h mail.Header, key string) ([]*mail.Address, error) {
	if h.Get(key) == "" {
		return nil, nil
	}
	list, err := h.AddressList(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return list, nil
}
