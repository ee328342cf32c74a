package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/oarkflow/postie/internal/config"
	"github.com/oarkflow/postie/internal/mailer"
)

// sendOptions holds the message flags shared by send and trigger.
type sendOptions struct {
	from, fromName string
	to, toName     string
	cc, ccName     string
	bcc, bccName   string
	subject        string
	text           string
	html           string
	attachments    string
	template       string
	data           []string
}

var messageFlags = []string{
	"from", "from-name", "to", "to-name", "cc", "cc-name", "bcc", "bcc-name",
	"subject", "text", "html", "attachments", "template", "data",
}

func (o *sendOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.from, "from", "", "sender email address")
	f.StringVar(&o.fromName, "from-name", "", "sender name")
	f.StringVar(&o.to, "to", "", "recipient email address or path to a JSON recipients file (.json)")
	f.StringVar(&o.toName, "to-name", "", "recipient name (only used when --to is an email address)")
	f.StringVar(&o.cc, "cc", "", "CC email address")
	f.StringVar(&o.ccName, "cc-name", "", "CC recipient name")
	f.StringVar(&o.bcc, "bcc", "", "BCC email address")
	f.StringVar(&o.bccName, "bcc-name", "", "BCC recipient name")
	f.StringVar(&o.subject, "subject", "", "email subject")
	f.StringVar(&o.text, "text", "", "plain text content")
	f.StringVar(&o.html, "html", "", "HTML content or path to an HTML file (.html)")
	f.StringVar(&o.attachments, "attachments", "", "comma-separated list of attachment files")
	f.StringVar(&o.template, "template", "", "template source or path to a template file")
	f.StringArrayVar(&o.data, "data", nil, "template data as key=value (repeatable)")
}

// definition converts the flags into a message. Relative paths resolve
// against dir.
func (o *sendOptions) definition(dir string) (mailer.AliasDefinition, error) {
	var def mailer.AliasDefinition
	def.From = addressFlag(o.from, o.fromName)
	def.CC = addressFlag(o.cc, o.ccName)
	def.BCC = addressFlag(o.bcc, o.bccName)
	def.Subject = o.subject
	def.Text = o.text
	def.Template = o.template

	if strings.HasSuffix(o.to, ".json") {
		to, err := readRecipients(resolvePath(dir, o.to))
		if err != nil {
			return def, err
		}
		def.To = to
	} else {
		def.To = addressFlag(o.to, o.toName)
	}

	if strings.HasSuffix(o.html, ".html") {
		path := resolvePath(dir, o.html)
		content, err := os.ReadFile(path)
		if err != nil {
			return def, fmt.Errorf("HTML file not found: %s", path)
		}
		def.HTML = string(content)
	} else {
		def.HTML = o.html
	}

	def.Attachments = parseAttachments(dir, o.attachments)

	data, err := parseData(o.data)
	if err != nil {
		return def, err
	}
	def.Data = data
	return def, nil
}

func addressFlag(email, name string) mailer.AddressField {
	switch {
	case email == "":
		return mailer.AddressField{}
	case name != "":
		return mailer.Named(email, name)
	default:
		return mailer.Single(email)
	}
}

func resolvePath(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// readRecipients reads a string, an {email, name} object or a list of
// either from a JSON file.
func readRecipients(path string) (mailer.AddressField, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return mailer.AddressField{}, fmt.Errorf("recipients file not found: %s", path)
	}
	var to mailer.AddressField
	if err := json.Unmarshal(raw, &to); err != nil {
		return mailer.AddressField{}, fmt.Errorf("invalid recipients file %s: %w", path, err)
	}
	return to, nil
}

func parseAttachments(dir, list string) []mailer.Attachment {
	return lo.FilterMap(strings.Split(list, ","), func(file string, _ int) (mailer.Attachment, bool) {
		file = strings.TrimSpace(file)
		if file == "" {
			return mailer.Attachment{}, false
		}
		return mailer.Attachment{Filename: filepath.Base(file), Path: resolvePath(dir, file)}, true
	})
}

// parseData turns key=value pairs into template data.
func parseData(pairs []string) (map[string]interface{}, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	data := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --data %q, expected key=value", pair)
		}
		data[key] = value
	}
	return data, nil
}

// requireFields checks the fields the CLI insists on before sending.
func requireFields(def mailer.AliasDefinition) error {
	if def.From.IsZero() {
		return fmt.Errorf("sender email is required. Use --from or provide it in %s", config.RCFile)
	}
	if def.To.IsZero() {
		return fmt.Errorf("recipient is required. Use --to or provide it in %s", config.RCFile)
	}
	if def.Subject == "" {
		return fmt.Errorf("subject is required. Use --subject or provide it in %s", config.RCFile)
	}
	return nil
}

var sendOpts sendOptions

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send an email",
	Long: `Send an email using the configured SMTP server.

Defaults from the config file apply to every message. When no message
flags are given, options are read from .postierc in the current directory.

Examples:
  postie send --to a@example.com --subject "Hi" --text "Hello"
  postie send --to recipients.json --subject "News" --html newsletter.html
  postie send --to a@example.com --subject "Welcome" --template welcome.html --data name=Ann`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		return s.close(runSend(cmd, s, &sendOpts, wd))
	},
}

func runSend(cmd *cobra.Command, s *session, opts *sendOptions, wd string) error {
	if !s.dispatcher.Config().DevMode && !s.transport {
		return errNotConfigured
	}

	explicit, err := opts.definition(wd)
	if err != nil {
		return err
	}
	if !anyChanged(cmd, messageFlags...) {
		if rc, err := loadRC(wd); err != nil {
			return err
		} else if rc != nil {
			explicit = rc.AliasDefinition
		}
	}

	def, err := mailer.Merge(mailer.AliasDefinition{Message: s.cfg.Defaults}, explicit)
	if err != nil {
		return err
	}
	if err := requireFields(def); err != nil {
		return err
	}

	var res mailer.SendResult
	if def.Template != "" {
		res, err = s.dispatcher.SendTemplate(cmd.Context(), mailer.TemplateMessage{
			Message:  def.Message,
			Template: def.Template,
			Data:     def.Data,
		})
	} else {
		res, err = s.dispatcher.Send(cmd.Context(), def.Message)
	}
	if err != nil {
		return deliveryFailure("error sending email", err)
	}

	printResult(cmd, res)
	return nil
}

// deliveryFailure wraps err, noting when the transport judged the failure
// temporary.
func deliveryFailure(action string, err error) error {
	var derr *mailer.DeliveryError
	if errors.As(err, &derr) && derr.Temporary {
		return fmt.Errorf("%s (temporary failure, try again later): %w", action, err)
	}
	return fmt.Errorf("%s: %w", action, err)
}

// loadRC returns nil when dir has no .postierc.
func loadRC(dir string) (*config.RC, error) {
	path := filepath.Join(dir, config.RCFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	rc, err := config.LoadRC(path)
	if err != nil {
		return nil, err
	}
	log.Debug("Loaded send options", "path", path)
	return rc, nil
}

func anyChanged(cmd *cobra.Command, names ...string) bool {
	return lo.SomeBy(names, func(name string) bool {
		return cmd.Flags().Changed(name)
	})
}

func printResult(cmd *cobra.Command, res mailer.SendResult) {
	out := cmd.OutOrStdout()
	switch {
	case res.Halted:
		fmt.Fprintln(out, "Email dropped by middleware")
	case res.DevMode:
		fmt.Fprintln(out, "✓ Dev mode: email not sent")
	default:
		fmt.Fprintf(out, "✓ Email sent successfully! (id %s, attempts %d)\n", res.MessageID, res.Attempts)
	}
}

func init() {
	sendOpts.bind(sendCmd)
}
