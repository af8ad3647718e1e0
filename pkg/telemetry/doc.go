// Package telemetry provides structured logging and metrics for the
// provisioning engine. Logging is built on zerolog; metrics are exposed
// through a dedicated Prometheus registry.
//
// Every component obtains a child logger via NewComponentLogger so that all
// log lines carry a stable "component" field. Propagation code additionally
// tags lines with the target resource and task identifier.
package telemetry
