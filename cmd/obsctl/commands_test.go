package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/onnwee/copilot/character"
	"github.com/onnwee/copilot/obs"
	"github.com/onnwee/copilot/testutil"
	"github.com/onnwee/copilot/transform"
)

func TestRunLineAppliesAsBroadcaster(t *testing.T) {
	fake := testutil.NewFakeOBS()
	var out bytes.Buffer
	if err := runLine(context.Background(), fake, transform.Settle{}, "!blur 50", &out); err != nil {
		t.Fatalf("runLine() error = %v", err)
	}
	if got := len(fake.Calls("SetFilterSettings", "SetFilterEnabled")); got != 2 {
		t.Errorf("calls = %+v", fake.Calls())
	}
	if !strings.Contains(out.String(), "applied") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunLinePrintsFeedback(t *testing.T) {
	fake := testutil.NewFakeOBS()
	var out bytes.Buffer
	if err := runLine(context.Background(), fake, transform.Settle{}, "!text hello", &out); err != nil {
		t.Fatal(err)
	}
	if len(fake.Calls()) != 0 || !strings.Contains(out.String(), "event") {
		t.Errorf("calls = %d output = %q", len(fake.Calls()), out.String())
	}
	if err := runLine(context.Background(), fake, transform.Settle{}, "!dance", &out); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestPrintItems(t *testing.T) {
	var out bytes.Buffer
	if err := printItems(&out, []obs.SceneItem{{ID: 3, SourceName: "BeginCam", Enabled: true}}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "BeginCam") {
		t.Errorf("output = %q", out.String())
	}
}

func TestCheckCharacters(t *testing.T) {
	table := character.New(nil, map[string]string{"pirate": "Parrot"}, "", "Seal")
	fake := testutil.NewFakeOBS()
	fake.Items["Characters"] = []obs.SceneItem{
		{ID: 1, SourceName: "Seal", Enabled: true},
		{ID: 2, SourceName: "Seal-text"},
		{ID: 3, SourceName: "Parrot"},
	}
	var out bytes.Buffer
	if err := checkCharacters(context.Background(), fake, table, "Characters", &out); err != nil {
		t.Fatalf("checkCharacters() error = %v", err)
	}
	for _, want := range []string{"Seal", "visible", "Parrot", "hidden"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}

	fake.Items["Characters"] = fake.Items["Characters"][:2]
	out.Reset()
	err := checkCharacters(context.Background(), fake, table, "Characters", &out)
	if err == nil || !strings.Contains(err.Error(), "Parrot") {
		t.Errorf("error = %v, want Parrot missing", err)
	}
}

func TestSay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/speak" || r.Header.Get("X-Admin-Token") != "tok" {
			http.Error(w, "nope", http.StatusUnauthorized)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "beginbot" || body["message"] != "ahoy there" {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"receivers":1}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	if err := say(context.Background(), srv.URL, "tok", "beginbot", "ahoy there", &out); err != nil {
		t.Fatalf("say() error = %v", err)
	}
	if err := say(context.Background(), srv.URL, "", "beginbot", "ahoy there", &out); err == nil {
		t.Error("expected error without token")
	}
}
