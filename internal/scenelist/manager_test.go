package scenelist

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/scenefetch/scenefetch/internal/api"
	"github.com/scenefetch/scenefetch/internal/models"
)

type fakeService struct {
	added     map[string][]string
	removed   []string
	addErr    error
	removeErr error
}

func (f *fakeService) SceneListAdd(ctx context.Context, listID, dataset string, entityIDs []string) (int, error) {
	if f.addErr != nil {
		return 0, f.addErr
	}
	if f.added == nil {
		f.added = make(map[string][]string)
	}
	f.added[listID] = append(f.added[listID], entityIDs...)
	return len(entityIDs), nil
}

func (f *fakeService) SceneListRemove(ctx context.Context, listID string) error {
	f.removed = append(f.removed, listID)
	return f.removeErr
}

func TestAdd(t *testing.T) {
	svc := &fakeService{}
	m := NewManager(svc, nil)

	n, err := m.Add(context.Background(), "batch_1", "landsat_ot_c2_l2", []string{"LC80", "LC81"})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if n != 2 || len(svc.added["batch_1"]) != 2 {
		t.Errorf("added = %d / %v", n, svc.added)
	}
}

func TestAddRejectsBadInput(t *testing.T) {
	m := NewManager(&fakeService{}, nil)

	tests := []struct {
		name   string
		listID string
		ids    []string
	}{
		{"empty list id", "", []string{"a"}},
		{"list id with space", "my list", []string{"a"}},
		{"no ids", "batch", nil},
		{"blank id", "batch", []string{"a", " "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Add(context.Background(), tt.listID, "ds", tt.ids); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"success", nil, false},
		{"http not found", &api.TransportError{Kind: api.KindNotFound, Endpoint: "scene-list-remove", StatusCode: 404}, false},
		{"service says list does not exist", &api.TransportError{Kind: api.KindServiceError, Code: "LIST_ERROR", Message: "List batch does not exist"}, false},
		{"server error", &api.TransportError{Kind: api.KindServerError, StatusCode: 500}, true},
		{"auth error", &api.TransportError{Kind: api.KindAuthError, StatusCode: 401}, true},
		{"other service error", &api.TransportError{Kind: api.KindServiceError, Code: "RATE_LIMIT", Message: "slow down"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(&fakeService{removeErr: tt.err}, nil)
			err := m.Remove(context.Background(), "batch")
			if (err != nil) != tt.wantErr {
				t.Errorf("Remove() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScopedAlwaysRemoves(t *testing.T) {
	list := models.WorkingList{ID: "batch", Dataset: "ds", Members: []string{"a"}}

	t.Run("fn succeeds", func(t *testing.T) {
		svc := &fakeService{}
		m := NewManager(svc, nil)
		ran := false
		err := m.Scoped(context.Background(), list, func(ctx context.Context) error {
			ran = true
			return nil
		})
		if err != nil || !ran {
			t.Fatalf("Scoped() error = %v, ran = %v", err, ran)
		}
		if len(svc.removed) != 1 || svc.removed[0] != "batch" {
			t.Errorf("removed = %v", svc.removed)
		}
	})

	t.Run("fn fails", func(t *testing.T) {
		svc := &fakeService{removeErr: errors.New("boom")}
		m := NewManager(svc, nil)
		fnErr := errors.New("options failed")
		err := m.Scoped(context.Background(), list, func(ctx context.Context) error { return fnErr })
		if !errors.Is(err, fnErr) {
			t.Errorf("Scoped() error = %v, want fn error", err)
		}
		if len(svc.removed) != 1 {
			t.Errorf("removed = %v, want one removal", svc.removed)
		}
	})

	t.Run("add fails", func(t *testing.T) {
		svc := &fakeService{addErr: &api.TransportError{Kind: api.KindBadRequest, Endpoint: "scene-list-add", StatusCode: 400}}
		m := NewManager(svc, nil)
		err := m.Scoped(context.Background(), list, func(ctx context.Context) error {
			t.Error("fn must not run when add fails")
			return nil
		})
		if err == nil || !strings.Contains(err.Error(), "failed to add") {
			t.Errorf("Scoped() error = %v", err)
		}
		if !api.IsKind(err, api.KindBadRequest) {
			t.Error("transport error should stay inspectable")
		}
	})
}
