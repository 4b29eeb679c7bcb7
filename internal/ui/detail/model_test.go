package detail

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdx/nerdx-notify/internal/keys"
	"github.com/nerdx/nerdx-notify/internal/model"
	"github.com/nerdx/nerdx-notify/internal/ui/notiflist"
)

func sample() model.Recipient {
	return model.Recipient{
		ID:             "r-1",
		NotificationID: "n-1",
		CreatedAt:      time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
		Notification: &model.Notification{
			ID:    "n-1",
			Title: "Exam schedule published",
			Body:  "Your spring exams are now listed.",
			Type:  model.NotificationUpdate,
			Metadata: map[string]any{
				"action_url":   "https://nerdx.example/exams",
				"action_label": "Open",
				"course":       "CS101",
			},
		},
	}
}

func press(t *testing.T, m Model, msg tea.KeyMsg) tea.Msg {
	t.Helper()
	_, cmd := m.Update(msg)
	if cmd == nil {
		return nil
	}
	return cmd()
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_RendersNotification(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 20)
	assert.Contains(t, m.View(), "No notification selected")

	m.SetRecord(sample())
	view := m.View()

	assert.Contains(t, view, "Exam schedule published")
	assert.Contains(t, view, "UNREAD")
	assert.Contains(t, view, "Your spring exams are now listed.")
	assert.Contains(t, view, "https://nerdx.example/exams")
	assert.Contains(t, view, "CS101")
	assert.Equal(t, "r-1", m.RecordID())
}

func TestModel_KeysEmitRowActions(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 20)
	m.SetRecord(sample())

	assert.Equal(t, notiflist.MarkReadMsg{ID: "r-1"}, press(t, m, tea.KeyMsg{Type: tea.KeyEnter}))
	assert.Equal(t, notiflist.DismissMsg{ID: "r-1"}, press(t, m, runes("d")))
	assert.Equal(t,
		notiflist.ActionMsg{Label: "Open", URL: "https://nerdx.example/exams"},
		press(t, m, runes("o")))
	assert.Equal(t, BackMsg{}, press(t, m, tea.KeyMsg{Type: tea.KeyEsc}))
}

func TestModel_ReadRecordDoesNotEmitMarkRead(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 20)
	rec := sample()
	read := rec.CreatedAt.Add(time.Minute)
	rec.ReadAt = &read
	rec.Notification.Metadata = nil
	m.SetRecord(rec)

	assert.Nil(t, press(t, m, tea.KeyMsg{Type: tea.KeyEnter}))
	assert.Nil(t, press(t, m, runes("o")))
	require.NotContains(t, m.View(), "UNREAD")
}
