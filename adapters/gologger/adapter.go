package gologger

import (
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// Resolve picks the integration's logger pair with provider > logger > nop
// precedence. The name scopes every downstream component's log output.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// JobLogging maps a resolved logger pair onto go-job's logging contracts so
// queue runners and the reconciliation worker report through the same sink.
// Nil inputs stay nil; go-job treats that as its own default.
func JobLogging(provider glog.LoggerProvider, logger glog.Logger) (job.LoggerProvider, job.Logger) {
	var jobProvider job.LoggerProvider
	if provider != nil {
		jobProvider = job.GoLoggerProvider(provider)
	}
	var jobLogger job.Logger
	if logger != nil {
		jobLogger = job.GoLogger(logger)
	}
	return jobProvider, jobLogger
}
