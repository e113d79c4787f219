package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/andresilva/fb-mssql-migrate/internal/config"
)

// Notifier sends migration events to a Slack incoming webhook.
type Notifier struct {
	config     *config.SlackConfig
	httpClient *http.Client
}

// SlackMessage is the webhook payload.
type SlackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment is one colored block in a message.
type SlackAttachment struct {
	Color     string       `json:"color,omitempty"`
	Title     string       `json:"title,omitempty"`
	Text      string       `json:"text,omitempty"`
	Fields    []SlackField `json:"fields,omitempty"`
	Footer    string       `json:"footer,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
}

// SlackField is a titled value inside an attachment.
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// New creates a Slack notifier. A nil or disabled config yields a notifier
// whose methods are no-ops.
func New(cfg *config.SlackConfig) *Notifier {
	if cfg == nil {
		cfg = &config.SlackConfig{Enabled: false}
	}
	return &Notifier{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// IsEnabled reports whether notifications will actually be sent.
func (n *Notifier) IsEnabled() bool {
	return n.config != nil && n.config.Enabled && n.config.WebhookURL != ""
}

// MigrationStarted sends the run start notification.
func (n *Notifier) MigrationStarted(runID, sourceDB, destDB string, tableCount int) error {
	if !n.IsEnabled() {
		return nil
	}

	msg := SlackMessage{
		Channel:   n.config.Channel,
		Username:  n.username(),
		IconEmoji: ":rocket:",
		Attachments: []SlackAttachment{
			{
				Color: "#36a64f",
				Title: "Migration Started",
				Fields: []SlackField{
					{Title: "Run ID", Value: runID, Short: true},
					{Title: "Tables", Value: fmt.Sprintf("%d", tableCount), Short: true},
					{Title: "Source", Value: sourceDB, Short: true},
					{Title: "Destination", Value: destDB, Short: true},
				},
				Footer:    "fb-mssql-migrate",
				Timestamp: time.Now().Unix(),
			},
		},
	}

	return n.send(msg)
}

// MigrationCompleted sends the clean completion notification.
func (n *Notifier) MigrationCompleted(runID string, startTime time.Time, duration time.Duration, tableCount int, rowCount, manualFixes int64) error {
	if !n.IsEnabled() {
		return nil
	}

	headerText := fmt.Sprintf("Migration completed successfully. Migrated %d tables with %s total rows.",
		tableCount, formatNumberWithCommas(rowCount))

	fields := []SlackField{
		{Title: "Run ID", Value: runID, Short: true},
		{Title: "Started", Value: startTime.UTC().Format("2006-01-02 15:04:05 UTC"), Short: true},
		{Title: "Duration", Value: formatDuration(duration), Short: true},
		{Title: "Tables", Value: fmt.Sprintf("%d", tableCount), Short: true},
		{Title: "Total Rows", Value: formatNumberWithCommas(rowCount), Short: true},
	}
	if manualFixes > 0 {
		fields = append(fields, SlackField{
			Title: "Manual Fixes", Value: formatNumberWithCommas(manualFixes), Short: true,
		})
	}

	msg := SlackMessage{
		Channel:   n.config.Channel,
		Username:  n.username(),
		IconEmoji: ":white_check_mark:",
		Text:      headerText,
		Attachments: []SlackAttachment{
			{
				Color:     "#36a64f",
				Fields:    fields,
				Footer:    "fb-mssql-migrate",
				Timestamp: time.Now().Unix(),
			},
		},
	}

	return n.send(msg)
}

// MigrationFailed sends the run failure notification.
func (n *Notifier) MigrationFailed(runID string, err error, duration time.Duration) error {
	if !n.IsEnabled() {
		return nil
	}

	errMsg := "Unknown error"
	if err != nil {
		errMsg = err.Error()
		if len(errMsg) > 500 {
			errMsg = errMsg[:500] + "..."
		}
	}

	msg := SlackMessage{
		Channel:   n.config.Channel,
		Username:  n.username(),
		IconEmoji: ":x:",
		Attachments: []SlackAttachment{
			{
				Color: "#dc3545",
				Title: "Migration Failed",
				Fields: []SlackField{
					{Title: "Run ID", Value: runID, Short: true},
					{Title: "Duration", Value: duration.Round(time.Second).String(), Short: true},
					{Title: "Error", Value: errMsg, Short: false},
				},
				Footer:    "fb-mssql-migrate",
				Timestamp: time.Now().Unix(),
			},
		},
	}

	return n.send(msg)
}

// MigrationCompletedWithErrors sends the partial completion notification.
func (n *Notifier) MigrationCompletedWithErrors(runID string, startTime time.Time, duration time.Duration,
	successTables, failedTables int, rowCount int64, failures []string) error {
	if !n.IsEnabled() {
		return nil
	}

	failureSummary := ""
	if len(failures) > 0 {
		if len(failures) <= 5 {
			failureSummary = "Failed tables: " + failures[0]
			for i := 1; i < len(failures); i++ {
				failureSummary += ", " + failures[i]
			}
		} else {
			failureSummary = fmt.Sprintf("Failed tables: %s, %s, %s... and %d more",
				failures[0], failures[1], failures[2], len(failures)-3)
		}
	}

	headerText := fmt.Sprintf("Migration completed with errors. %d tables succeeded, %d tables failed. Migrated %s rows.",
		successTables, failedTables, formatNumberWithCommas(rowCount))

	msg := SlackMessage{
		Channel:   n.config.Channel,
		Username:  n.username(),
		IconEmoji: ":warning:",
		Text:      headerText,
		Attachments: []SlackAttachment{
			{
				Color: "#ffc107",
				Fields: []SlackField{
					{Title: "Run ID", Value: runID, Short: true},
					{Title: "Started", Value: startTime.UTC().Format("2006-01-02 15:04:05 UTC"), Short: true},
					{Title: "Duration", Value: formatDuration(duration), Short: true},
					{Title: "Succeeded", Value: fmt.Sprintf("%d tables", successTables), Short: true},
					{Title: "Failed", Value: fmt.Sprintf("%d tables", failedTables), Short: true},
					{Title: "Total Rows", Value: formatNumberWithCommas(rowCount), Short: true},
					{Title: "Failed Tables", Value: failureSummary, Short: false},
				},
				Footer:    "fb-mssql-migrate",
				Timestamp: time.Now().Unix(),
			},
		},
	}

	return n.send(msg)
}

// TableMigrationFailed sends a per-table failure notification.
func (n *Notifier) TableMigrationFailed(runID, table string, err error) error {
	if !n.IsEnabled() {
		return nil
	}

	errMsg := "Unknown error"
	if err != nil {
		errMsg = err.Error()
	}

	msg := SlackMessage{
		Channel:   n.config.Channel,
		Username:  n.username(),
		IconEmoji: ":warning:",
		Attachments: []SlackAttachment{
			{
				Color: "#ffc107",
				Title: "Table Migration Failed",
				Fields: []SlackField{
					{Title: "Run ID", Value: runID, Short: true},
					{Title: "Table", Value: table, Short: true},
					{Title: "Error", Value: errMsg, Short: false},
				},
				Footer:    "fb-mssql-migrate",
				Timestamp: time.Now().Unix(),
			},
		},
	}

	return n.send(msg)
}

func (n *Notifier) send(msg SlackMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	resp, err := n.httpClient.Post(n.config.WebhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("sending to Slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Slack returned status %d", resp.StatusCode)
	}

	return nil
}

func (n *Notifier) username() string {
	if n.config.Username != "" {
		return n.config.Username
	}
	return "fb-mssql-migrate"
}

func formatNumberWithCommas(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result []byte
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	return string(result)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
