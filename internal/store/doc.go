// Package store provides the persistence abstractions shared by the task
// store backends: the DBTX interface over *sql.DB / *sql.Tx, the common
// error taxonomy, and the transaction helper.
package store
