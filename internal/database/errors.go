package database

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// SQLSTATE codes sayuctl reacts to.
const (
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
	CodeNotNullViolation    = "23502"
	CodeCheckViolation      = "23514"
	CodeInvalidText         = "22P02"
	CodeInvalidDatetime     = "22007"
	CodeUndefinedTable      = "42P01"
	CodeUndefinedColumn     = "42703"
	CodeSerialization       = "40001"
	CodeDeadlock            = "40P01"
)

// ErrorCode returns the SQLSTATE of err, or "" when err is not a Postgres error.
// Errors from both pgx and lib/pq are understood.
func ErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func IsUniqueViolation(err error) bool {
	return ErrorCode(err) == CodeUniqueViolation
}

// IsUndefined reports whether err says a table or column does not exist.
func IsUndefined(err error) bool {
	code := ErrorCode(err)
	return code == CodeUndefinedTable || code == CodeUndefinedColumn
}

// IsTransient reports whether retrying the same statement could succeed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch ErrorCode(err) {
	case CodeSerialization, CodeDeadlock:
		return true
	case "":
	default:
		// connection exceptions are class 08, insufficient resources class 53
		code := ErrorCode(err)
		return code[:2] == "08" || code[:2] == "53"
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
