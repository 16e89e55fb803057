// Package tsnsched routes the streams of a time-sensitive network and
// assigns each of them a cyclic queue on every hop, for the CSQF and
// Multi-CQF shaper disciplines.
//
// A run goes through three stages. Build turns a Problem (network,
// streams, discipline and cycle configuration) into a solver-neutral
// milp.Program. Every stream gets binary variables for the links it may
// use and for the labels (instance, cycle offset, queue) it may carry on
// each of them. Streams that cannot meet their bound on any route are left
// out and reported as StaticInfeasibility. A milp.Solver, by default the
// branch-and-bound backend of package milp/bnb, solves the program.
// Extract decodes the assignment into a Schedule and re-validates every
// route, label, latency and per-cycle capacity before returning it. Run
// chains the stages and adds diagnosis of infeasible programs, an
// event-driven replay of the schedule, logging and metrics.
//
// Network and stream descriptions are read from yaml/json (TopoDesc,
// StreamListDesc, ShaperDesc) or from the comma-separated case files of
// the text format (ReadLegacyCase).
package tsnsched
