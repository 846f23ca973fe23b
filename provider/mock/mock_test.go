package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/GoCodeAlone/swarm/provider"
)

func TestMockProvider_CyclesResponses(t *testing.T) {
	m := New("one", "two")
	for i, want := range []string{"one", "two", "one"} {
		resp, err := m.Complete(context.Background(), provider.Request{Prompt: "p"})
		if err != nil {
			t.Fatalf("Complete %d: %v", i, err)
		}
		if resp.Content != want {
			t.Errorf("response %d = %q, want %q", i, resp.Content, want)
		}
	}
	if m.Calls() != 3 {
		t.Errorf("calls = %d, want 3", m.Calls())
	}
}

func TestMockProvider_RecordsPrompts(t *testing.T) {
	m := New("ok")
	_, _ = m.Complete(context.Background(), provider.Request{Prompt: "first"})
	_, _ = m.Complete(context.Background(), provider.Request{Prompt: "second"})
	if len(m.Prompts) != 2 || m.Prompts[1] != "second" {
		t.Errorf("prompts = %v", m.Prompts)
	}
}

func TestMockProvider_Failing(t *testing.T) {
	wantErr := errors.New("unreachable")
	m := Failing("down", wantErr)
	if m.Name() != "down" {
		t.Errorf("name = %q", m.Name())
	}
	if _, err := m.Complete(context.Background(), provider.Request{Prompt: "p"}); !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want %v", err, wantErr)
	}
}
