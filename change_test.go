package changesync

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestValidateNewChange(t *testing.T) {
	valid := NewChange{EntityType: EntityOrder, EntityID: "o-1", Operation: OperationInsert, Payload: json.RawMessage(`{"total":1}`)}

	tests := []struct {
		name   string
		mutate func(*NewChange)
		want   error
	}{
		{name: "valid", mutate: func(*NewChange) {}},
		{name: "entity type", mutate: func(c *NewChange) { c.EntityType = "" }, want: ErrEntityTypeRequired},
		{name: "entity id", mutate: func(c *NewChange) { c.EntityID = "" }, want: ErrEntityIDRequired},
		{name: "operation", mutate: func(c *NewChange) { c.Operation = "MERGE" }, want: ErrInvalidOperation},
		{name: "lower-case operation", mutate: func(c *NewChange) { c.Operation = "insert" }, want: ErrInvalidOperation},
		{name: "negative priority", mutate: func(c *NewChange) { c.Priority = -1 }, want: ErrInvalidPriority},
		{name: "empty payload", mutate: func(c *NewChange) { c.Payload = nil }, want: ErrPayloadRequired},
		{name: "invalid payload", mutate: func(c *NewChange) { c.Payload = json.RawMessage(`{"total":`) }, want: ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("expected valid change, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestChange_Eligible(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		change Change
		want   bool
	}{
		{name: "pending", change: Change{Status: StatusPending}, want: true},
		{name: "retry due", change: Change{Status: StatusRetry, NextRetryAt: now}, want: true},
		{name: "retry later", change: Change{Status: StatusRetry, NextRetryAt: now.Add(time.Second)}},
		{name: "delayed due", change: Change{Status: StatusDelayed, NextRetryAt: now.Add(-time.Second)}, want: true},
		{name: "delayed later", change: Change{Status: StatusDelayed, NextRetryAt: now.Add(time.Minute)}},
		{name: "success", change: Change{Status: StatusSuccess}},
		{name: "failed", change: Change{Status: StatusFailed}},
	}
	for _, tt := range tests {
		if got := tt.change.Eligible(now); got != tt.want {
			t.Fatalf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}
