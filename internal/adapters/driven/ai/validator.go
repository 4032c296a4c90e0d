package ai

import (
	"context"
	"fmt"
)

type pinger interface {
	Ping(ctx context.Context) error
	ModelName() string
}

func ping(ctx context.Context, what string, svc pinger) error {
	if svc == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := svc.Ping(ctx); err != nil {
		return fmt.Errorf("%s service %s unreachable: %w", what, svc.ModelName(), err)
	}
	return nil
}
