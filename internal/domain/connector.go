package domain

import (
	"context"

	"example.com/coachsync/internal/garmin"
)

// Connector opens authenticated sessions against Garmin Connect. The concrete
// adapter lives in internal/garmin; the indirection keeps the remote service
// mockable in tests.
type Connector interface {
	Login(ctx context.Context, email, password string) (Session, error)
}

// Session is one authenticated Garmin Connect account handle. Every operation
// may independently fail with a *garmin.Fault; sessions go stale mid-use.
type Session interface {
	FetchProfileName(ctx context.Context) (string, error)
	ListWorkouts(ctx context.Context) ([]garmin.WorkoutSummary, error)
	UploadWorkout(ctx context.Context, payload []byte) (string, error)
}

type clientConnector struct {
	client *garmin.Client
}

// NewConnector wraps the concrete Garmin client as a Connector.
func NewConnector(client *garmin.Client) Connector {
	return clientConnector{client: client}
}

func (cc clientConnector) Login(ctx context.Context, email, password string) (Session, error) {
	session, err := cc.client.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return session, nil
}
