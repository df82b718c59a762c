// Package eos defines the equation-of-state collaborator consumed by the
// regime grid engine.
//
// The engine never computes pressures itself. It calls an [Evaluator] once
// per grid cell and only reads back the dominant pressure channel:
//
//   - [Gas]: ideal-gas thermal pressure dominates
//   - [Radiation]: photon pressure dominates
//   - [Degeneracy]: electron degeneracy pressure dominates
//   - anything else: no single channel dominates
//
// [Ideal] is a closed-form reference model so the engine can run without an
// external physics library. It is not meant to be accurate.
//
// # Thread Safety
//
// Evaluate must be safe to call from the evaluation goroutine while no
// parameters are being changed. Configure models (SetParam) before handing
// them to an engine.
package eos
