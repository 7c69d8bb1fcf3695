package service

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/helpdesk-sync/internal/domain"
)

var (
	// ErrUnmappedStatus means a local status has no ClickUp label. The local
	// enum is closed, so this indicates a programming error.
	ErrUnmappedStatus = errors.New("status has no clickup equivalent")
	// ErrUnmappedPriority means a priority value is outside the fixed table.
	ErrUnmappedPriority = errors.New("priority has no mapping")
)

// StatusAliases is the optional YAML file extending the ClickUp vocabulary.
//
//	canonical:
//	  open: "to do"
//	statuses:
//	  in_progress: ["em execução", "fazendo"]
type StatusAliases struct {
	Canonical map[domain.TicketStatus]string   `yaml:"canonical"`
	Statuses  map[domain.TicketStatus][]string `yaml:"statuses"`
}

// LoadStatusAliases reads an alias file. An empty path yields no aliases.
func LoadStatusAliases(path string) (*StatusAliases, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read status aliases: %w", err)
	}
	var aliases StatusAliases
	if err := yaml.Unmarshal(data, &aliases); err != nil {
		return nil, fmt.Errorf("parse status aliases: %w", err)
	}
	for status := range aliases.Canonical {
		if !status.Valid() {
			return nil, fmt.Errorf("status aliases: unknown status %q", status)
		}
	}
	for status := range aliases.Statuses {
		if !status.Valid() {
			return nil, fmt.Errorf("status aliases: unknown status %q", status)
		}
	}
	return &aliases, nil
}

type statusLabel struct {
	label  string
	status domain.TicketStatus
}

// StatusMapper translates ticket status and priority to and from ClickUp's
// vocabulary. It is immutable after construction and safe for concurrent use.
type StatusMapper struct {
	toExternal map[domain.TicketStatus]string
	labels     []statusLabel
}

var defaultCanonical = map[domain.TicketStatus]string{
	domain.TicketStatusOpen:       "aberto",
	domain.TicketStatusInProgress: "em andamento",
	domain.TicketStatusResolved:   "resolvido",
	domain.TicketStatusClosed:     "fechado",
}

var defaultLabels = []statusLabel{
	{"aberto", domain.TicketStatusOpen},
	{"open", domain.TicketStatusOpen},
	{"to do", domain.TicketStatusOpen},
	{"a fazer", domain.TicketStatusOpen},
	{"em andamento", domain.TicketStatusInProgress},
	{"in progress", domain.TicketStatusInProgress},
	{"em progresso", domain.TicketStatusInProgress},
	{"resolvido", domain.TicketStatusResolved},
	{"resolved", domain.TicketStatusResolved},
	{"concluido", domain.TicketStatusResolved},
	{"fechado", domain.TicketStatusClosed},
	{"closed", domain.TicketStatusClosed},
	{"cancelado", domain.TicketStatusClosed},
}

var statusKeywords = []struct {
	tokens []string
	status domain.TicketStatus
}{
	{[]string{"progress", "working", "andamento", "doing", "fazendo"}, domain.TicketStatusInProgress},
	{[]string{"done", "complete", "resolv", "conclu", "finaliz"}, domain.TicketStatusResolved},
	{[]string{"cancel", "fechad", "arquiv"}, domain.TicketStatusClosed},
}

// priority levels: 1 urgent, 2 high, 3 normal, 4 low.
var priorityToLevel = map[domain.TicketPriority]int{
	domain.TicketPriorityCritical: 1,
	domain.TicketPriorityHigh:     2,
	domain.TicketPriorityMedium:   3,
	domain.TicketPriorityLow:      4,
}

var levelToPriority = map[int]domain.TicketPriority{
	1: domain.TicketPriorityCritical,
	2: domain.TicketPriorityHigh,
	3: domain.TicketPriorityMedium,
	4: domain.TicketPriorityLow,
}

// NewStatusMapper builds a mapper from the default vocabulary extended by aliases (may be nil).
func NewStatusMapper(aliases *StatusAliases) *StatusMapper {
	m := &StatusMapper{
		toExternal: make(map[domain.TicketStatus]string, len(defaultCanonical)),
	}
	for status, label := range defaultCanonical {
		m.toExternal[status] = label
	}
	seen := map[string]bool{}
	addLabel := func(label string, status domain.TicketStatus) {
		normalized := normalizeLabel(label)
		if normalized == "" || seen[normalized] {
			return
		}
		seen[normalized] = true
		m.labels = append(m.labels, statusLabel{label: normalized, status: status})
	}

	if aliases != nil {
		for _, status := range domain.TicketStatuses {
			if label := strings.TrimSpace(aliases.Canonical[status]); label != "" {
				m.toExternal[status] = label
				addLabel(label, status)
			}
		}
	}
	for _, l := range defaultLabels {
		addLabel(l.label, l.status)
	}
	if aliases != nil {
		for _, status := range domain.TicketStatuses {
			for _, label := range aliases.Statuses[status] {
				addLabel(label, status)
			}
		}
	}
	return m
}

// StatusToExternal returns the ClickUp label for a local status.
func (m *StatusMapper) StatusToExternal(status domain.TicketStatus) (string, error) {
	label, ok := m.toExternal[status]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnmappedStatus, status)
	}
	return label, nil
}

// ExternalToStatus maps a free-text ClickUp label onto a local status. It
// never fails: exact match, then containment either way, then keyword
// heuristics, then open.
func (m *StatusMapper) ExternalToStatus(raw string) domain.TicketStatus {
	label := normalizeLabel(raw)
	if label == "" {
		return domain.TicketStatusOpen
	}
	for _, known := range m.labels {
		if known.label == label {
			return known.status
		}
	}
	for _, known := range m.labels {
		if strings.Contains(label, known.label) || (len(label) >= 3 && strings.Contains(known.label, label)) {
			return known.status
		}
	}
	for _, kw := range statusKeywords {
		for _, token := range kw.tokens {
			if strings.Contains(label, token) {
				return kw.status
			}
		}
	}
	return domain.TicketStatusOpen
}

// IsValidExternalStatus reports whether raw exactly names a known label,
// ignoring case and diacritics. No heuristics apply.
func (m *StatusMapper) IsValidExternalStatus(raw string) bool {
	label := normalizeLabel(raw)
	if label == "" {
		return false
	}
	for _, known := range m.labels {
		if known.label == label {
			return true
		}
	}
	return false
}

// PriorityToExternal returns the ClickUp priority level.
func (m *StatusMapper) PriorityToExternal(priority domain.TicketPriority) (int, error) {
	level, ok := priorityToLevel[priority]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnmappedPriority, priority)
	}
	return level, nil
}

// ExternalToPriority maps a ClickUp priority level back to a local priority.
func (m *StatusMapper) ExternalToPriority(level int) (domain.TicketPriority, error) {
	priority, ok := levelToPriority[level]
	if !ok {
		return "", fmt.Errorf("%w: level %d", ErrUnmappedPriority, level)
	}
	return priority, nil
}

// normalizeLabel lower-cases, strips diacritics and collapses whitespace.
func normalizeLabel(raw string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, raw)
	if err != nil {
		stripped = raw
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}
