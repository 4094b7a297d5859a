// Package aoi describes areas of interest and selects the Sentinel-1 bursts
// that cover them.
package aoi
