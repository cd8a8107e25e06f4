// Package prediction forecasts near-term spot availability from the occupancy
// snapshot history. The model extrapolates a recency-weighted trend plus a
// discrete acceleration term, boosted during commute peak hours, and scores
// its own confidence from sample size, variance and acceleration stability.
//
// The model is deterministic: the caller supplies the evaluation time.
package prediction
