package login

import (
	"fmt"
	"net/mail"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nerdx/nerdx-notify/internal/theme"
)

// SubmitMsg is dispatched when the user completes the form.
type SubmitMsg struct {
	Email    string
	Password string
}

// CancelMsg is dispatched when the user aborts the form.
type CancelMsg struct{}

// credentials holds field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type credentials struct {
	email    string
	password string
}

// Model is the sign-in form for the realtime session.
type Model struct {
	form   *huh.Form
	creds  *credentials
	errMsg string
	width  int
	height int
}

// New creates a login form model.
func New(width, height int) Model {
	return Model{
		creds:  &credentials{},
		width:  width,
		height: height,
	}
}

// Start resets the form, prefilling email, and returns its init command.
func (m *Model) Start(email string) tea.Cmd {
	m.creds.email = email
	m.creds.password = ""
	m.form = NewForm(&m.creds.email, &m.creds.password)
	return m.form.Init()
}

// SetError shows a sign-in failure above the form.
func (m *Model) SetError(msg string) {
	m.errMsg = msg
}

// NewForm builds the email and password form bound to the given values.
// The CLI runs it standalone; the TUI embeds it.
func NewForm(email, password *string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Value(email).
				Validate(validateEmail),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(password).
				Validate(validateRequired("password")),
		),
	).WithShowHelp(true)
}

// Update handles messages for the form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		submit := SubmitMsg{Email: strings.TrimSpace(m.creds.email), Password: m.creds.password}
		m.form = nil
		return m, func() tea.Msg { return submit }
	case huh.StateAborted:
		m.form = nil
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render("Sign in for live updates")
	if m.errMsg != "" {
		content += "\n" + lipgloss.NewStyle().Foreground(theme.ColorRed).Render(m.errMsg)
	}
	content += "\n" + m.form.View()

	return theme.PanelStyle.
		Width(min(m.width-4, 72)).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func validateEmail(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("email is required")
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return fmt.Errorf("invalid email address")
	}
	return nil
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}
