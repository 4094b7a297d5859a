// Package catalog queries the ASF search API for the acquisitions of
// Sentinel-1 bursts and decides which bursts qualify for processing.
package catalog
