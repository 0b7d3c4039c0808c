// Package pgstore is the PostgreSQL identity store. It implements
// portalauth.PrincipalStore over database/sql with the pgx driver and ships
// its schema as embedded golang-migrate migrations.
package pgstore
