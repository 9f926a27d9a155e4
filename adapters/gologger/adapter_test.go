package gologger

import (
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func TestResolveFallsBackToNop(t *testing.T) {
	provider, logger := Resolve("ghlmp", nil, nil)
	if provider == nil {
		t.Fatal("expected resolved provider")
	}
	if logger == nil {
		t.Fatal("expected resolved logger")
	}
}

func TestResolvePrefersExplicitLogger(t *testing.T) {
	explicit := glog.Nop()
	_, logger := Resolve("ghlmp", nil, explicit)
	if logger == nil {
		t.Fatal("expected resolved logger")
	}
}

func TestJobLogging(t *testing.T) {
	jobProvider, jobLogger := JobLogging(nil, nil)
	if jobProvider != nil || jobLogger != nil {
		t.Fatal("nil inputs must map to nil job adapters")
	}

	provider, logger := Resolve("reconcile", nil, nil)
	jobProvider, jobLogger = JobLogging(provider, logger)
	if jobProvider == nil {
		t.Fatal("expected job provider adapter")
	}
	if jobLogger == nil {
		t.Fatal("expected job logger adapter")
	}
}
