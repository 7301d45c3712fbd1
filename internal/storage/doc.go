// Package storage owns the Postgres connection of the cycled daemon: opening it through the pgx
// database/sql driver, applying the embedded goose migrations, and the users table behind
// password login. Cycle statistics are persisted by stats.PostgresRepository over the same
// handle.
package storage
