package mailer

import "maps"

// DefaultSubject is used when a message is sent without a subject.
const DefaultSubject = "No Subject"

// Attachment is passed to the transport untouched.
type Attachment struct {
	Filename    string `yaml:"filename,omitempty" json:"filename,omitempty"`
	Path        string `yaml:"path,omitempty" json:"path,omitempty"`
	Content     []byte `yaml:"content,omitempty" json:"content,omitempty"`
	ContentType string `yaml:"content_type,omitempty" json:"contentType,omitempty"`
	Encoding    string `yaml:"encoding,omitempty" json:"encoding,omitempty"`
}

// Message is what callers hand to Send. Each role name (FromName, ToName...)
// only applies when the matching role is a bare Single address.
type Message struct {
	From        AddressField      `yaml:"from,omitempty" json:"from,omitempty"`
	FromName    string            `yaml:"from_name,omitempty" json:"fromName,omitempty"`
	To          AddressField      `yaml:"to,omitempty" json:"to,omitempty"`
	ToName      string            `yaml:"to_name,omitempty" json:"toName,omitempty"`
	CC          AddressField      `yaml:"cc,omitempty" json:"cc,omitempty"`
	CCName      string            `yaml:"cc_name,omitempty" json:"ccName,omitempty"`
	BCC         AddressField      `yaml:"bcc,omitempty" json:"bcc,omitempty"`
	BCCName     string            `yaml:"bcc_name,omitempty" json:"bccName,omitempty"`
	Subject     string            `yaml:"subject,omitempty" json:"subject,omitempty"`
	Text        string            `yaml:"text,omitempty" json:"text,omitempty"`
	HTML        string            `yaml:"html,omitempty" json:"html,omitempty"`
	Attachments []Attachment      `yaml:"attachments,omitempty" json:"attachments,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// TemplateMessage is a Message whose HTML body is produced from Template.
type TemplateMessage struct {
	Message  `yaml:",inline"`
	Template string                 `yaml:"template,omitempty" json:"template,omitempty"`
	Data     map[string]interface{} `yaml:"data,omitempty" json:"data,omitempty"`
}

// Envelope is the normalized message seen by middleware and transports.
type Envelope struct {
	From        string            `json:"from" validate:"required"`
	To          []string          `json:"to" validate:"required,min=1"`
	CC          []string          `json:"cc,omitempty"`
	BCC         []string          `json:"bcc,omitempty"`
	Subject     string            `json:"subject"`
	Text        string            `json:"text,omitempty" validate:"required_without=HTML"`
	HTML        string            `json:"html,omitempty"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// SendResult describes the outcome of a dispatch.
type SendResult struct {
	Success   bool
	MessageID string
	Attempts  int
	DevMode   bool
	// Halted is set when a middleware stopped the chain without error.
	Halted bool
	// Envelope echoes the constructed message in dev mode.
	Envelope *Envelope
}

// normalize builds the envelope. From keeps only the first formatted
// address since a message has a single author.
func normalize(msg Message) *Envelope {
	env := &Envelope{
		To:          Format(msg.To, msg.ToName),
		CC:          Format(msg.CC, msg.CCName),
		BCC:         Format(msg.BCC, msg.BCCName),
		Subject:     msg.Subject,
		Text:        msg.Text,
		HTML:        msg.HTML,
		Attachments: msg.Attachments,
		Headers:     maps.Clone(msg.Headers),
	}
	if from := Format(msg.From, msg.FromName); len(from) > 0 {
		env.From = from[0]
	}
	if env.Subject == "" {
		env.Subject = DefaultSubject
	}
	return env
}
