package azsb

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"

	apperrors "github.com/sb-console/engine/pkg/errors"
	"github.com/sb-console/engine/pkg/model"
)

// TokenSource is the minimal surface this package needs from the auth
// state manager: a snapshot read of the current data-plane token.
// *authstate.State satisfies this directly.
type TokenSource interface {
	Token(scope model.Scope) model.AuthToken
}

// credentialAdapter makes a TokenSource satisfy azcore.TokenCredential so
// the data-plane token acquired through the console's own OAuth providers
// can authenticate the Service Bus SDK's client, instead of going through
// azidentity.
type credentialAdapter struct {
	tokens TokenSource
}

func newCredentialAdapter(tokens TokenSource) *credentialAdapter {
	return &credentialAdapter{tokens: tokens}
}

func (c *credentialAdapter) GetToken(_ context.Context, _ policy.TokenRequestOptions) (azcore.AccessToken, error) {
	tok := c.tokens.Token(model.ScopeDataPlane)
	if tok.Token == "" {
		return azcore.AccessToken{}, apperrors.Authentication("no data-plane token available", nil)
	}
	return azcore.AccessToken{Token: tok.Token, ExpiresOn: tok.ExpiresAt}, nil
}
