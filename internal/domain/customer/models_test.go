package customer

import (
	"errors"
	"testing"
)

func TestTransitionStatus(t *testing.T) {
	tests := []struct {
		name       string
		from       Status
		to         Status
		wantErr    error
		wantStatus Status
	}{
		{
			name:       "pending to completed",
			from:       StatusPending,
			to:         StatusCompleted,
			wantStatus: StatusCompleted,
		},
		{
			name:       "pending to failed",
			from:       StatusPending,
			to:         StatusFailed,
			wantStatus: StatusFailed,
		},
		{
			name:       "completed to completed is idempotent",
			from:       StatusCompleted,
			to:         StatusCompleted,
			wantStatus: StatusCompleted,
		},
		{
			name:       "completed to failed rejected",
			from:       StatusCompleted,
			to:         StatusFailed,
			wantErr:    ErrStatusConflict,
			wantStatus: StatusCompleted,
		},
		{
			name:       "failed to completed rejected",
			from:       StatusFailed,
			to:         StatusCompleted,
			wantErr:    ErrStatusConflict,
			wantStatus: StatusFailed,
		},
		{
			name:       "completed back to pending rejected",
			from:       StatusCompleted,
			to:         StatusPending,
			wantErr:    ErrStatusConflict,
			wantStatus: StatusCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{ID: "state-1", Status: tt.from}
			err := s.TransitionStatus(tt.to)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("TransitionStatus(%s -> %s) error = %v, want %v", tt.from, tt.to, err, tt.wantErr)
			}
			if s.Status != tt.wantStatus {
				t.Errorf("status after transition = %s, want %s", s.Status, tt.wantStatus)
			}
		})
	}
}

func TestTransitionStatus_InvalidValue(t *testing.T) {
	s := &Session{ID: "state-1", Status: StatusPending}
	if err := s.TransitionStatus(Status("canceled")); err == nil {
		t.Error("TransitionStatus with unknown value expected error, got nil")
	}
	if s.Status != StatusPending {
		t.Errorf("status mutated on invalid transition: %s", s.Status)
	}
}

func TestApplySessionUpdate(t *testing.T) {
	fcID := "fcsess_123"
	completed := StatusCompleted

	s := &Session{ID: "state-1", Status: StatusPending}
	err := ApplySessionUpdate(s, SessionUpdate{
		FCSessionID: &fcID,
		Metadata:    map[string]string{"institution": "fcinst_abc"},
	})
	if err != nil {
		t.Fatalf("ApplySessionUpdate failed: %v", err)
	}
	if s.FCSessionID != fcID {
		t.Errorf("FCSessionID = %q, want %q", s.FCSessionID, fcID)
	}
	if s.Status != StatusPending {
		t.Errorf("status changed without a status update: %s", s.Status)
	}

	if err := ApplySessionUpdate(s, SessionUpdate{Status: &completed}); err != nil {
		t.Fatalf("ApplySessionUpdate status failed: %v", err)
	}
	if s.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", s.Status)
	}
	if s.Metadata["institution"] != "fcinst_abc" {
		t.Error("metadata lost across updates")
	}

	// A conflicting terminal update must not touch other fields.
	failed := StatusFailed
	other := "fcsess_other"
	err = ApplySessionUpdate(s, SessionUpdate{Status: &failed, FCSessionID: &other})
	if !errors.Is(err, ErrStatusConflict) {
		t.Errorf("conflicting update error = %v, want ErrStatusConflict", err)
	}
	if s.FCSessionID != fcID {
		t.Errorf("FCSessionID mutated on rejected update: %q", s.FCSessionID)
	}
}

func TestCustomerClone_Isolation(t *testing.T) {
	c := &Customer{
		ID:       "cus_1",
		TestMode: true,
		Sessions: map[string]*Session{
			"state-1": {ID: "state-1", Status: StatusPending, Metadata: map[string]string{"k": "v"}},
		},
	}

	cp := c.Clone()
	cp.Sessions["state-1"].Status = StatusCompleted
	cp.Sessions["state-1"].Metadata["k"] = "changed"
	cp.Sessions["state-2"] = &Session{ID: "state-2", Status: StatusPending}

	if c.Sessions["state-1"].Status != StatusPending {
		t.Error("clone shares session state with original")
	}
	if c.Sessions["state-1"].Metadata["k"] != "v" {
		t.Error("clone shares metadata map with original")
	}
	if _, ok := c.Sessions["state-2"]; ok {
		t.Error("clone shares session map with original")
	}
}
