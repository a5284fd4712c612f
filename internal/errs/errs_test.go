package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_ErrorString(t *testing.T) {
	withURL := New(KindDownload, "http://x/y", errors.New("timeout"))
	if got, want := withURL.Error(), "download: http://x/y: timeout"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	noURL := New(KindConfig, "", errors.New("bad"))
	if got, want := noURL.Error(), "config: bad"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestError_UnwrapAndAs(t *testing.T) {
	cause := errors.New("boom")
	wrapped := fmt.Errorf("context: %w", New(KindScript, "u", cause))

	classified, ok := As(wrapped)
	if !ok {
		t.Fatalf("expected As to find a classified Error")
	}
	if classified.Kind != KindScript {
		t.Errorf("Kind = %q, want %q", classified.Kind, KindScript)
	}
	if !errors.Is(classified, cause) && !errors.Is(wrapped, cause) {
		t.Errorf("expected the cause to be reachable via errors.Is")
	}

	if _, ok := As(errors.New("unclassified")); ok {
		t.Errorf("expected As to report false for an unclassified error")
	}
}

func TestError_WithWorker(t *testing.T) {
	e := New(KindDownload, "u", errors.New("x"))
	withWorker := e.WithWorker("3")

	if withWorker.WorkerID != "3" {
		t.Errorf("WorkerID = %q, want %q", withWorker.WorkerID, "3")
	}
	if e.WorkerID != "" {
		t.Errorf("WithWorker must not mutate the receiver, got WorkerID %q", e.WorkerID)
	}
}

func TestParsePolicy(t *testing.T) {
	cases := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"skip-and-log", PolicySkipAndLog, false},
		{"fail", PolicyFail, false},
		{"ignore", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := ParsePolicy(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParsePolicy(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsFatal(t *testing.T) {
	cases := []struct {
		name   string
		kind   Kind
		policy Policy
		want   bool
	}{
		{"config always fatal under skip-and-log", KindConfig, PolicySkipAndLog, true},
		{"sink always fatal under skip-and-log", KindSink, PolicySkipAndLog, true},
		{"download skips under skip-and-log", KindDownload, PolicySkipAndLog, false},
		{"download fatal under fail", KindDownload, PolicyFail, true},
		{"xml skips under skip-and-log", KindXML, PolicySkipAndLog, false},
		{"script fatal under fail", KindScript, PolicyFail, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := New(tc.kind, "", errors.New("x"))
			if got := IsFatal(err, tc.policy); got != tc.want {
				t.Errorf("IsFatal(%s, %s) = %v, want %v", tc.kind, tc.policy, got, tc.want)
			}
		})
	}
}
