/*
Package authsdk is the Go client for the Gatehouse identity service.

It carries the JSON request and response types of the HTTP API and a small
Client for the common flows:

	c := authsdk.NewClient("https://gatehouse.example.com")

	// Sign in with a local password. When a second factor is pending the
	// returned session has a stage other than "full".
	s, err := c.Login(ctx, authsdk.LoginRequest{Email: email, Password: password})
	if s.Stage == authsdk.StageMFAChallenge {
		s, err = c.WithToken(s.Token).CompleteMFA(ctx, code)
	}

	// Administrators issue invitations with a full session.
	admin := c.WithToken(s.Token)
	inv, err := admin.CreateInvitation(ctx, authsdk.CreateInvitationRequest{
		Email: "bob@example.com",
		Role:  "editor",
	})

Refusals to sign someone in come back as *APIError whose Code is a stable
reason such as "no_valid_invitation" or "invitation_already_used". Use
IsRejection to tell them apart from transport failures.
*/
package authsdk
