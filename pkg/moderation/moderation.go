package moderation

import (
	"context"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

type Verdict int8

const (
	Accept Verdict = iota
	Reject
)

func (v Verdict) String() string {
	if v == Reject {
		return "reject"
	}
	return "accept"
}

type Classifier interface {
	Classify(ctx context.Context, text string) (Verdict, error)
}

// Gate turns a classifier into a fail-open check. Provider outages must
// never block posting.
type Gate struct {
	classifier Classifier
	log        logrus.FieldLogger
}

func NewGate(classifier Classifier, log logrus.FieldLogger) *Gate {
	return &Gate{classifier: classifier, log: log}
}

func (g *Gate) Evaluate(ctx context.Context, text string) Verdict {
	verdict, err := g.classifier.Classify(ctx, text)
	if err != nil {
		g.log.WithError(err).Warn("moderation unavailable, accepting post")
		sentry.CaptureException(err)
		return Accept
	}
	return verdict
}
