package notifications

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/signalforge/signalforge/internal/config"
	"github.com/signalforge/signalforge/internal/models"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Service sends scan digests via Teams and email
type Service struct {
	teamsWebhookURL string
	recipients      []string
	from            string
	client          *resty.Client
	sendMail        func(m *gomail.Message) error
}

// Ensure Service implements Notifier
var _ Notifier = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type     string         `json:"@type"`
	Context  string         `json:"@context"`
	Title    string         `json:"title"`
	Text     string         `json:"text"`
	Sections []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle string      `json:"activityTitle,omitempty"`
	ActivityText  string      `json:"activityText,omitempty"`
	Facts         []TeamsFact `json:"facts,omitempty"`
	Markdown      bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a notification service from the process configuration
func NewService(cfg *config.Config) *Service {
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	return &Service{
		teamsWebhookURL: cfg.TeamsWebhookURL,
		recipients:      cfg.NotificationEmails,
		from:            cfg.SMTPUsername,
		client:          resty.New().SetTimeout(30 * time.Second),
		sendMail:        func(m *gomail.Message) error { return dialer.DialAndSend(m) },
	}
}

// SendDigest sends the digest to every configured channel. A failing
// channel does not stop the others.
func (s *Service) SendDigest(ctx context.Context, digest *models.Digest) error {
	var errs []string

	if s.teamsWebhookURL != "" {
		if err := s.sendToTeams(ctx, digest); err != nil {
			logrus.Errorf("Failed to send Teams digest: %v", err)
			errs = append(errs, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.Infof("Sent digest for scan %s to Teams", digest.ScanID)
		}
	}

	if len(s.recipients) > 0 {
		if err := s.sendEmail(digest); err != nil {
			logrus.Errorf("Failed to send digest email: %v", err)
			errs = append(errs, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.Infof("Sent digest for scan %s to %d recipients", digest.ScanID, len(s.recipients))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (s *Service) sendToTeams(ctx context.Context, digest *models.Digest) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(buildTeamsMessage(digest)).
		Post(s.teamsWebhookURL)
	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}
	return nil
}

func subject(digest *models.Digest) string {
	return fmt.Sprintf("Signal scan for org %d: %d matches, %d ideas", digest.OrgID, digest.Matched, digest.IdeaCount)
}

func buildTeamsMessage(digest *models.Digest) *TeamsMessage {
	message := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   subject(digest),
		Text:    fmt.Sprintf("Scan %s finished at %s", digest.ScanID, digest.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC")),
	}

	facts := []TeamsFact{
		{Name: "Matched items", Value: fmt.Sprintf("%d", digest.Matched)},
		{Name: "Ideas", Value: fmt.Sprintf("%d", digest.IdeaCount)},
	}
	for _, r := range digest.Sources {
		if !r.Attempted {
			continue
		}
		facts = append(facts, TeamsFact{
			Name:  r.Source,
			Value: fmt.Sprintf("%d fetched, %d matched", r.Fetched, r.Matched),
		})
	}
	message.Sections = append(message.Sections, TeamsSection{
		ActivityTitle: "Summary",
		Facts:         facts,
		Markdown:      true,
	})

	if len(digest.TopIdeas) > 0 {
		var rows []string
		for _, idea := range digest.TopIdeas {
			rows = append(rows, fmt.Sprintf("**%s** (%s, %s) %d mentions, %.1f%% pay. %s",
				idea.IdeaKey, idea.Signal, idea.Momentum, idea.Mentions, idea.PayRatio, idea.SampleURL))
		}
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Top ideas",
			ActivityText:  strings.Join(rows, "\n\n"),
			Markdown:      true,
		})
	}

	if len(digest.Warnings) > 0 {
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Warnings",
			ActivityText:  strings.Join(digest.Warnings, "\n\n"),
		})
	}

	return message
}

func (s *Service) sendEmail(digest *models.Digest) error {
	htmlBody, err := buildEmailHTML(digest)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", s.recipients...)
	m.SetHeader("Subject", subject(digest))
	m.SetBody("text/plain", buildEmailText(digest))
	m.AddAlternative("text/html", htmlBody)

	if err := s.sendMail(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

var emailTemplate = template.Must(template.New("email").Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Signal scan digest</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #0078d4; color: white; padding: 20px; border-radius: 5px; }
        .summary { background-color: #f5f5f5; padding: 15px; margin: 20px 0; border-radius: 5px; }
        .idea { border-left: 4px solid #0078d4; padding: 10px; margin: 10px 0; background-color: #fafafa; }
        .idea-title { font-weight: bold; margin-bottom: 5px; }
        .idea-meta { color: #666; font-size: 0.9em; }
        .warning { color: #d13438; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Signal scan digest</h1>
        <p>Scan {{.ScanID}} finished on {{.GeneratedAt.Format "January 2, 2006 at 3:04 PM UTC"}}</p>
    </div>

    <div class="summary">
        <h2>Summary</h2>
        <p><strong>Matched items:</strong> {{.Matched}}</p>
        <p><strong>Ideas:</strong> {{.IdeaCount}}</p>
        {{range .Sources}}{{if .Attempted}}
        <p><strong>{{.Source}}:</strong> {{.Fetched}} fetched, {{.Matched}} matched</p>
        {{end}}{{end}}
        {{range .Warnings}}<p class="warning">{{.}}</p>{{end}}
    </div>

    {{if .TopIdeas}}
    <h2>Top ideas</h2>
    {{range .TopIdeas}}
    <div class="idea">
        <div class="idea-title">{{if .SampleURL}}<a href="{{.SampleURL}}" target="_blank">{{.IdeaKey}}</a>{{else}}{{.IdeaKey}}{{end}}</div>
        <div class="idea-meta">{{.Signal}} signal | {{.Momentum}} | {{.Mentions}} mentions | {{printf "%.1f" .PayRatio}}% pay</div>
        <p>{{.Brief}}</p>
    </div>
    {{end}}
    {{end}}

    <hr>
    <p><small>This digest was generated automatically by SignalForge.</small></p>
</body>
</html>
`))

func buildEmailHTML(digest *models.Digest) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, digest); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildEmailText(digest *models.Digest) string {
	var text strings.Builder

	text.WriteString(subject(digest) + "\n")
	text.WriteString(fmt.Sprintf("Generated: %s\n\n", digest.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC")))

	text.WriteString("SUMMARY\n")
	text.WriteString("=======\n")
	for _, r := range digest.Sources {
		if r.Attempted {
			text.WriteString(fmt.Sprintf("%s: %d fetched, %d matched\n", r.Source, r.Fetched, r.Matched))
		}
	}
	for _, w := range digest.Warnings {
		text.WriteString("Warning: " + w + "\n")
	}

	if len(digest.TopIdeas) > 0 {
		text.WriteString("\nTOP IDEAS\n")
		text.WriteString("=========\n")
		for i, idea := range digest.TopIdeas {
			text.WriteString(fmt.Sprintf("\n%d. %s [%s, %s]\n", i+1, idea.IdeaKey, idea.Signal, idea.Momentum))
			text.WriteString(fmt.Sprintf("   %s\n", idea.Brief))
			if idea.SampleURL != "" {
				text.WriteString(fmt.Sprintf("   Sample: %s\n", idea.SampleURL))
			}
		}
	}

	text.WriteString("\n---\nThis digest was generated automatically by SignalForge.\n")
	return text.String()
}
