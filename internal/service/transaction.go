package service

import "context"

// TransactionManager runs fn in one database transaction. Repositories called
// with the ctx handed to fn join it; an error from fn rolls everything back.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
