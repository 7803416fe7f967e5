// Package database provides PostgreSQL connectivity and the run repository.
//
// Uses pgx for connection pooling and tern for embedded migrations. RunRepo
// implements domain.RunRepository; replay frames are stored zstd-compressed.
package database
