package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-sync/internal/domain"
)

func TestStatusMapper_RoundTrip(t *testing.T) {
	m := NewStatusMapper(nil)
	for _, status := range domain.TicketStatuses {
		label, err := m.StatusToExternal(status)
		require.NoError(t, err)
		assert.Equal(t, status, m.ExternalToStatus(label), "label %q", label)
	}
}

func TestStatusMapper_StatusToExternal_Unmapped(t *testing.T) {
	m := NewStatusMapper(nil)
	_, err := m.StatusToExternal(domain.TicketStatus("archived"))
	assert.ErrorIs(t, err, ErrUnmappedStatus)
}

func TestStatusMapper_ExternalToStatus_CaseAndDiacritics(t *testing.T) {
	m := NewStatusMapper(nil)
	cases := map[string]domain.TicketStatus{
		"ABERTO":       domain.TicketStatusOpen,
		"Aberto":       domain.TicketStatusOpen,
		"aberto":       domain.TicketStatusOpen,
		"RESOLVIDO":    domain.TicketStatusResolved,
		"Concluído":    domain.TicketStatusResolved,
		"EM ANDAMENTO": domain.TicketStatusInProgress,
		"  Fechado ":   domain.TicketStatusClosed,
	}
	for raw, want := range cases {
		assert.Equal(t, want, m.ExternalToStatus(raw), "label %q", raw)
	}
}

func TestStatusMapper_ExternalToStatus_Ladder(t *testing.T) {
	m := NewStatusMapper(nil)
	cases := []struct {
		name string
		raw  string
		want domain.TicketStatus
	}{
		{"containment input holds label", "resolvido pelo cliente", domain.TicketStatusResolved},
		{"containment label holds input", "andamento", domain.TicketStatusInProgress},
		{"keyword progress", "work in progress?", domain.TicketStatusInProgress},
		{"keyword working", "working on it", domain.TicketStatusInProgress},
		{"keyword done", "done", domain.TicketStatusResolved},
		{"keyword complete", "Completed", domain.TicketStatusResolved},
		{"keyword cancel", "Cancelled by requester", domain.TicketStatusClosed},
		{"fallback", "backlog", domain.TicketStatusOpen},
		{"empty", "", domain.TicketStatusOpen},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, m.ExternalToStatus(tc.raw))
		})
	}
}

func TestStatusMapper_IsValidExternalStatus(t *testing.T) {
	m := NewStatusMapper(nil)
	assert.True(t, m.IsValidExternalStatus("Em Andamento"))
	assert.True(t, m.IsValidExternalStatus("CONCLUÍDO"))
	assert.False(t, m.IsValidExternalStatus("working on it"))
	assert.False(t, m.IsValidExternalStatus(""))
}

func TestStatusMapper_Priority(t *testing.T) {
	m := NewStatusMapper(nil)
	for _, p := range []domain.TicketPriority{
		domain.TicketPriorityCritical,
		domain.TicketPriorityHigh,
		domain.TicketPriorityMedium,
		domain.TicketPriorityLow,
	} {
		level, err := m.PriorityToExternal(p)
		require.NoError(t, err)
		back, err := m.ExternalToPriority(level)
		require.NoError(t, err)
		assert.Equal(t, p, back)
	}

	level, err := m.PriorityToExternal(domain.TicketPriorityCritical)
	require.NoError(t, err)
	assert.Equal(t, 1, level)

	_, err = m.ExternalToPriority(7)
	assert.ErrorIs(t, err, ErrUnmappedPriority)
	_, err = m.PriorityToExternal(domain.TicketPriority("urgent"))
	assert.ErrorIs(t, err, ErrUnmappedPriority)
}

func TestLoadStatusAliases(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aliases.yaml")
	content := "canonical:\n  open: \"to do\"\nstatuses:\n  in_progress: [\"em execução\", \"fazendo\"]\n  resolved: [\"entregue\"]\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	aliases, err := LoadStatusAliases(path)
	require.NoError(t, err)
	m := NewStatusMapper(aliases)

	label, err := m.StatusToExternal(domain.TicketStatusOpen)
	require.NoError(t, err)
	assert.Equal(t, "to do", label)
	assert.Equal(t, domain.TicketStatusInProgress, m.ExternalToStatus("EM EXECUCAO"))
	assert.Equal(t, domain.TicketStatusResolved, m.ExternalToStatus("Entregue"))
	assert.True(t, m.IsValidExternalStatus("entregue"))
}

func TestLoadStatusAliases_RejectsUnknownStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	require.NoError(t, os.WriteFile(path, []byte("statuses:\n  archived: [\"x\"]\n"), 0o600))
	_, err := LoadStatusAliases(path)
	assert.Error(t, err)
}

func TestLoadStatusAliases_EmptyPath(t *testing.T) {
	aliases, err := LoadStatusAliases("")
	require.NoError(t, err)
	assert.Nil(t, aliases)
}
