// Package sync holds the domain model of the catalog synchronization
// pipeline: the ports to the supplier catalog and exchange-rate sources,
// the run state machine with its report, and the error taxonomy shared by
// every pipeline stage. Concrete adapters live in the infrastructure
// layer; the orchestration logic lives in the application layer.
package sync
