// Package sim provides the discrete-event simulation kernel for resflow.
//
// # Reading Guide
//
// Start with these files to understand the kernel:
//   - logical_process.go: the event clock and its wavefront loop
//   - manager.go: resource reservation, queues and release under one lock per manager
//   - flow_exec.go: how work threads move through the flow graph
//   - simulation.go: wiring a built Model to a run
//
// # Architecture
//
// A Model is assembled from resource types, resources with timetables,
// activities with workgroups, element types, a flow graph and generators.
// Model.Build validates it and partitions activities and resource types into
// ActivityManagers: connected components of the "activity requires type" and
// "resource serves type" relations. Each manager owns one mutex guarding the
// queues and availability lists of its part of the model, so events touching
// different managers can run in parallel.
//
// Events at the same timestamp form a batch handed to a Dispatcher
// (sequential, pool, barrier or batched). The logical process does not move
// its clock until every event at the current timestamp, including events
// scheduled at that timestamp while the batch ran, has executed.
//
// Sub-packages build on the kernel:
//   - sim/randvar/: time functions backed by probability distributions
//   - sim/model/: YAML model files and their translation into a Model
//   - sim/stats/: a listener collecting queue, utilization and wait statistics
//   - sim/trace/: a listener recording kernel notifications
//
// # Randomness
//
// Every draw comes from a PartitionedRNG derived from the run seed: one stream
// per manager, generator, resource and element. Runs with the sequential
// dispatcher are reproducible; parallel dispatchers keep every invariant but
// may interleave same-instant events differently.
package sim
