package services

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/barangaylink/backend/internal/identity"
	"github.com/barangaylink/backend/internal/mail"
)

type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) CreateUser(ctx context.Context, params identity.CreateUserParams) (*identity.AuthUser, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.AuthUser), args.Error(1)
}

func (m *MockIdentityProvider) UpdateUser(ctx context.Context, id string, params identity.UpdateUserParams) (*identity.AuthUser, error) {
	args := m.Called(ctx, id, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.AuthUser), args.Error(1)
}

func (m *MockIdentityProvider) DeleteUser(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockIdentityProvider) GetUserByEmail(ctx context.Context, email string) (*identity.AuthUser, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.AuthUser), args.Error(1)
}

func (m *MockIdentityProvider) VerifyPassword(ctx context.Context, email, password string) (*identity.AuthUser, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.AuthUser), args.Error(1)
}

// chanMailer records welcome emails on a channel so tests can wait for the
// asynchronous send without sleeping.
type chanMailer struct {
	sent chan mail.WelcomeEmail
}

func newChanMailer() *chanMailer {
	return &chanMailer{sent: make(chan mail.WelcomeEmail, 1)}
}

func (m *chanMailer) SendWelcome(payload mail.WelcomeEmail) error {
	m.sent <- payload
	return nil
}

func (m *chanMailer) wait(timeout time.Duration) (mail.WelcomeEmail, bool) {
	select {
	case payload := <-m.sent:
		return payload, true
	case <-time.After(timeout):
		return mail.WelcomeEmail{}, false
	}
}
