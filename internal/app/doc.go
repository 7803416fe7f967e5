// Package app provides the application service layer.
//
// RunCoordinator turns run lifecycle requests into persisted state and live
// events, in that order. PriceTicker drives the simulated DBP price feed.
// Both depend on domain interfaces only.
package app
