package authorizer

import (
	"context"
	"fmt"

	"summershop-saga/pkg/models"
)

// Authorizer captures funds for a payment. Implementations may be slow and
// nondeterministic; callers bound every call with a context timeout.
type Authorizer interface {
	Authorize(ctx context.Context, payment models.Payment) (models.AuthorizationResult, error)
}

type AuthorizerType string

const (
	AuthorizerMock AuthorizerType = "mock"
)

func NewAuthorizer(authorizerType AuthorizerType) (Authorizer, error) {
	var auth Authorizer
	switch authorizerType {
	case AuthorizerMock:
		auth = NewMockAuthorizer()
	default:
		return nil, fmt.Errorf("Not available authorizer type: %s", string(authorizerType))
	}

	return auth, nil
}
