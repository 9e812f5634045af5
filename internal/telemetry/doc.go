// Package telemetry binds engine lifecycle hooks to Prometheus collectors and
// sets up OpenTelemetry trace export.
package telemetry
