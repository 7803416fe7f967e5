// Package memory provides in-process implementations of the run, tracker,
// stats and price stores. main falls back to them when DATABASE_URL or
// REDIS_URL is unset, which keeps local development dependency-free.
package memory
