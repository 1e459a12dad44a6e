package usecase

import (
	"strings"
	"sync"

	"callstack/internal/domain"
	"callstack/internal/ports"
)

// previewText keeps settled phrases plus the phrase still being spoken.
type previewText struct {
	mu      sync.Mutex
	settled []string
	interim string
}

func (p *previewText) Add(event domain.TranscriptEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	text := strings.TrimSpace(event.Text)
	if text == "" {
		return
	}
	if event.Kind == domain.TranscriptKindFinal {
		p.settled = append(p.settled, text)
		p.interim = ""
		return
	}
	p.interim = text
}

func (p *previewText) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	parts := append([]string(nil), p.settled...)
	if p.interim != "" {
		parts = append(parts, p.interim)
	}
	return strings.Join(parts, " ")
}

func consumePreview(session ports.StreamingSession, text *previewText, onChange func(string), done chan struct{}) {
	defer close(done)

	for event := range session.Events() {
		if strings.TrimSpace(event.Text) == "" {
			continue
		}
		text.Add(event)
		onChange(text.String())
	}
}
