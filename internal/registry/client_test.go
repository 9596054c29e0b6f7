package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second, zerolog.Nop(), nil), srv
}

func TestCheckDoctor_Exists(t *testing.T) {
	var gotAuth string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/admin/doctors/7" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"doctor_id":7,"name":"Dr. Lema","specialty":"cardiology"}`))
	})

	res := c.CheckDoctor(context.Background(), 7, "tok-123")
	if !res.Exists {
		t.Error("expected doctor to exist")
	}
	if !res.Active {
		t.Error("doctors report active=true")
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("expected credential forwarded verbatim, got %q", gotAuth)
	}
}

func TestCheckPatient_ActiveStatus(t *testing.T) {
	cases := []struct {
		status string
		active bool
	}{
		{"ACTIVE", true},
		{"INACTIVE", false},
	}
	for _, tc := range cases {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"patient_id":3,"status":"` + tc.status + `"}`))
		})
		res := c.CheckPatient(context.Background(), 3, "tok")
		if !res.Exists {
			t.Errorf("status %s: expected exists", tc.status)
		}
		if res.Active != tc.active {
			t.Errorf("status %s: expected active=%v", tc.status, tc.active)
		}
	}
}

func TestCheck_NotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	})
	res := c.CheckCenter(context.Background(), 9999, "tok")
	if res.Exists {
		t.Error("expected exists=false for 404")
	}
}

func TestCheck_FailClosedOnServerError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	res := c.CheckDoctor(context.Background(), 1, "tok")
	if res.Exists {
		t.Error("expected exists=false for 500")
	}
}

func TestCheck_FailClosedOnTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, 50*time.Millisecond, zerolog.Nop(), nil)
	res := c.CheckPatient(context.Background(), 1, "tok")
	if res.Exists {
		t.Error("expected exists=false on timeout")
	}
}

func TestCheck_FailClosedOnUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 100*time.Millisecond, zerolog.Nop(), nil)
	res := c.CheckDoctor(context.Background(), 1, "tok")
	if res.Exists {
		t.Error("expected exists=false when registry unreachable")
	}
}

func TestCheck_FailClosedOnBadPayload(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})
	res := c.CheckDoctor(context.Background(), 1, "tok")
	if res.Exists {
		t.Error("expected exists=false for undecodable payload")
	}
}
