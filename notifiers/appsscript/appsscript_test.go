package appsscript

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	sheetstore "github.com/danielGPGT/go-sheetstore"
	"github.com/sirupsen/logrus/hooks/test"
)

type scriptServer struct {
	mu      sync.Mutex
	actions []string
	status  int
}

func newScriptServer(t *testing.T, status int) (*scriptServer, *httptest.Server) {
	t.Helper()
	s := &scriptServer{status: status}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		var body struct {
			Action string `json:"action"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.actions = append(s.actions, body.Action)
		s.mu.Unlock()
		w.WriteHeader(s.status)
		w.Write([]byte("script says hi"))
	}))
	t.Cleanup(server.Close)
	return s, server
}

func TestNew(t *testing.T) {
	if _, err := New(Config{}, nil, nil); !errors.Is(err, ErrMissingURL) {
		t.Errorf("New() error = %v, want ErrMissingURL", err)
	}
	n, err := New(Config{URL: "http://localhost"}, nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if n.client.Timeout != 10*time.Second {
		t.Errorf("default timeout = %v, want 10s", n.client.Timeout)
	}
}

func TestNotifier_Action(t *testing.T) {
	n, _ := New(Config{URL: "http://localhost"}, nil, nil)

	tests := []struct {
		sheet  string
		want   string
		wantOK bool
	}{
		{"Users", "updateUsers", true},
		{"NewStock - Tickets", "updateTickets", true},
		{"Stock - Flights", "updateFlights", true},
		{"Stock - Circuit Transfers", "", false},
		{"FX - Spread", "", false},
		{"Bookings", DefaultAction, true},
	}
	for _, tt := range tests {
		t.Run(tt.sheet, func(t *testing.T) {
			got, ok := n.Action(tt.sheet)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Action(%q) = %q, %v, want %q, %v", tt.sheet, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNotifier_CustomActions(t *testing.T) {
	n, _ := New(Config{
		URL:           "http://localhost",
		Actions:       map[string]string{"My Sheet": "rebuild", "Quiet": ""},
		DefaultAction: "noop",
	}, nil, nil)

	if got, _ := n.Action("my sheet"); got != "rebuild" {
		t.Errorf("Action(my sheet) = %q, want rebuild", got)
	}
	if _, ok := n.Action("QUIET"); ok {
		t.Error("Action(QUIET) should be skipped")
	}
	if got, _ := n.Action("Users"); got != "noop" {
		t.Errorf("Action(Users) = %q, want the configured default", got)
	}
}

func TestNotifier_Notify(t *testing.T) {
	script, server := newScriptServer(t, http.StatusOK)
	logger, hook := test.NewNullLogger()
	n, err := New(Config{URL: server.URL}, server.Client(), logger)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for _, sheet := range []string{"Users", "Stock - Airport Transfers", "Bookings"} {
		if err := n.Notify(ctx, sheetstore.Change{Sheet: sheet, Op: sheetstore.OpUpdate}); err != nil {
			t.Fatalf("Notify(%s) error = %v", sheet, err)
		}
	}

	script.mu.Lock()
	defer script.mu.Unlock()
	if strings.Join(script.actions, ",") != "updateUsers,runAllUpdates" {
		t.Errorf("actions posted = %v", script.actions)
	}
	if entry := hook.LastEntry(); entry == nil || entry.Data["action"] != "runAllUpdates" {
		t.Errorf("last log entry = %v", entry)
	}
}

func TestNotifier_NotifyFailure(t *testing.T) {
	_, server := newScriptServer(t, http.StatusInternalServerError)
	n, _ := New(Config{URL: server.URL}, server.Client(), nil)

	err := n.Notify(context.Background(), sheetstore.Change{Sheet: "Users"})
	if err == nil {
		t.Fatal("Notify() expected error for a 500 response")
	}
	if !strings.Contains(err.Error(), "500") || !strings.Contains(err.Error(), "script says hi") {
		t.Errorf("Notify() error = %v", err)
	}
}

func TestNotifier_RespectsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()
	n, _ := New(Config{URL: server.URL}, server.Client(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := n.Notify(ctx, sheetstore.Change{Sheet: "Users"}); err == nil {
		t.Error("Notify() expected error after the deadline")
	}
}

// A dispatched change triggers exactly one script call.
func TestNotifier_ThroughDispatcher(t *testing.T) {
	script, server := newScriptServer(t, http.StatusOK)
	n, _ := New(Config{URL: server.URL}, server.Client(), nil)
	logger, _ := test.NewNullLogger()

	d := sheetstore.NewDispatcher(n, 4, time.Second, logger, nil)
	d.Dispatch(sheetstore.Change{Sheet: "Packages", Op: sheetstore.OpAdd})
	d.Stop()

	script.mu.Lock()
	defer script.mu.Unlock()
	if len(script.actions) != 1 || script.actions[0] != "updatePackages" {
		t.Errorf("actions posted = %v", script.actions)
	}
}
