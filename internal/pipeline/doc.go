// Package pipeline drives one pass over the configured AOIs: check the stored
// state, find and qualify bursts, partition them into multi-bursts, publish a
// job per group and record the result.
package pipeline
