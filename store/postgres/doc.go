// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: conditional-update status transitions, row-locked sequence
// allocation for gap-free event blocks, row-level security for tenant
// isolation, embedded SQL migrations.
package postgres
