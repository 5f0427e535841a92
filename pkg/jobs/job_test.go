package jobs

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cloudcompchem/cloudcompchem/pkg/api"
)

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusRunning, false},
		{StatusSucceeded, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestJobValue(t *testing.T) {
	result := &api.CalculationResult{Kind: api.CalculationEnergy, Energy: &api.SinglePointEnergyResult{Energy: -1}}
	engineErr := api.NewEngineError("SCF failed", nil)

	tests := []struct {
		name           string
		job            Job
		wantReady      bool
		wantSuccessful bool
		wantResult     bool
		wantErr        error
	}{
		{"pending", Job{Status: StatusPending}, false, false, false, ErrNotReady},
		{"running", Job{Status: StatusRunning}, false, false, false, ErrNotReady},
		{"succeeded", Job{Status: StatusSucceeded, Result: result}, true, true, true, nil},
		{"failed", Job{Status: StatusFailed, Error: engineErr}, true, false, false, engineErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.job.Ready() != tt.wantReady {
				t.Errorf("Ready() = %v", tt.job.Ready())
			}
			if tt.job.Successful() != tt.wantSuccessful {
				t.Errorf("Successful() = %v", tt.job.Successful())
			}
			res, err := tt.job.Value()
			if (res != nil) != tt.wantResult {
				t.Errorf("Value() result = %v", res)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Value() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	cancelled := Job{Status: StatusCancelled}
	if _, err := cancelled.Value(); err == nil {
		t.Error("cancelled job should report an error")
	}
}

func TestJobHandle(t *testing.T) {
	created := time.Unix(1700000000, 0)
	job := &Job{
		ID:        "job_abc",
		Kind:      api.CalculationEnergy,
		Status:    StatusSucceeded,
		Result:    &api.CalculationResult{Kind: api.CalculationEnergy, Energy: &api.SinglePointEnergyResult{Energy: -76.3, Converged: true}},
		CreatedAt: created,
		UpdatedAt: created.Add(time.Minute),
	}

	h, err := job.Handle()
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	data, _ := json.Marshal(h)

	var got map[string]any
	json.Unmarshal(data, &got)
	if got["id"] != "job_abc" || got["status"] != "succeeded" || got["ready"] != true || got["successful"] != true {
		t.Errorf("unexpected handle %s", data)
	}
	result, ok := got["result"].(map[string]any)
	if !ok {
		t.Fatalf("result missing: %s", data)
	}
	if result["energy"] != -76.3 || result["converged"] != true {
		t.Errorf("result should be the bare energy payload, got %v", result)
	}
	if _, ok := got["error"]; ok {
		t.Error("successful job must not carry an error")
	}
	if got["updated_at"] != float64(created.Unix()+60) {
		t.Errorf("updated_at = %v", got["updated_at"])
	}
}

func TestJobHandle_Failed(t *testing.T) {
	job := &Job{ID: "job_x", Kind: api.CalculationOptimization, Status: StatusFailed,
		Error: api.NewEngineError("unknown functional", nil)}

	h, err := job.Handle()
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if h.Ready != true || h.Successful || h.Result != nil {
		t.Errorf("unexpected handle %+v", h)
	}
	if h.Error == nil || h.Error.Type != api.ErrorTypeEngineError {
		t.Errorf("expected engine error, got %+v", h.Error)
	}
}
