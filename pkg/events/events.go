package events

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Outcome describes one finished synchronization attempt.
type Outcome struct {
	ID          string    `json:"id"`
	CandidateID string    `json:"candidate_id"`
	SourceName  string    `json:"source_name,omitempty"`
	Login       string    `json:"login,omitempty"`
	Success     bool      `json:"success"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Publisher delivers outcome events.
type Publisher interface {
	Publish(ctx context.Context, outcome Outcome) error
}

// LogPublisher writes outcomes to the structured log.
type LogPublisher struct {
	log *logrus.Logger
}

// NewLogPublisher creates a log-backed publisher.
func NewLogPublisher(log *logrus.Logger) *LogPublisher {
	if log == nil {
		log = logrus.New()
	}
	return &LogPublisher{log: log}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(_ context.Context, outcome Outcome) error {
	entry := p.log.WithFields(logrus.Fields{
		"candidate_id": outcome.CandidateID,
		"source":       outcome.SourceName,
		"login":        outcome.Login,
		"success":      outcome.Success,
	})
	if outcome.Success {
		entry.Info("synchronization finished")
		return nil
	}
	entry.WithField("message", outcome.Message).Warn("synchronization failed")
	return nil
}

// Multi fans an outcome out to several publishers; the first error is
// returned after all publishers ran.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, outcome Outcome) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, outcome); err != nil && first == nil {
			first = err
		}
	}
	return first
}
