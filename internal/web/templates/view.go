package templates

import (
	"github.com/JonMunkholm/seace/internal/core"
)

// ProfileOption is one entry of the profile selector.
type ProfileOption struct {
	Name     string
	Label    string
	Selected bool
}

// Choice is one option of a multi-select.
type Choice struct {
	Value    string
	Selected bool
}

// Alert is a mapped error shown above the page content.
type Alert struct {
	Message string
	Action  string
	Code    string
	Details []string
}

// NewAlert builds an Alert from a user message.
func NewAlert(msg core.UserMessage, details ...string) *Alert {
	return &Alert{Message: msg.Message, Action: msg.Action, Code: msg.Code, Details: details}
}

// MailView drives the mail form.
type MailView struct {
	Token         string
	FormRecipient bool // false: the configured recipient is used
	FixedMessage  bool
	To            string
	Subject       string
	Body          string
	Sent          bool
	SentTo        string
	SentAt        string
}

// DatasetView is the validated upload of the current session.
type DatasetView struct {
	FileName string
	Profile  string
	Total    int
	Matched  int

	Renames   []core.Rename
	Conflicts []core.Conflict
	Dates     core.DateStats

	EntityField string
	ObjectField string
	DateField   string
	Entities    []Choice
	Objects     []Choice
	HasDates    bool
	MinDate     string
	MaxDate     string
	From        string
	To          string

	Required     []string // required columns present, in profile order
	RequiredOnly bool     // preview shows only Required

	Columns   []string
	Rows      [][]string
	Truncated bool

	Mail           MailView
	ArchiveEnabled bool
	ArchiveURL     string
	ArchiveKey     string
}

// PageData is everything the main page renders.
type PageData struct {
	Profiles []ProfileOption
	Error    *Alert
	Notice   string
	Dataset  *DatasetView
	MaxSize  int64
}
