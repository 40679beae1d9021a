/*
Package twofasdk provides a typed Go client for the Caseloop second-factor
service.

The surrounding application authenticates to the service with short-lived
HS256 service tokens whose subject is the acting user. The SDK never mints
those tokens; callers pass one into each authenticated operation.

	client := twofasdk.NewClient("https://2fa.internal.caseloop.dev")

	offer, err := client.BeginEnrollment(ctx, serviceToken, twofasdk.BeginEnrollmentRequest{
		AccountName: "alice@example.com",
	})

	// After the user scans the QR code and enters the six digit code:
	err = client.ConfirmEnrollment(ctx, serviceToken, twofasdk.ConfirmEnrollmentRequest{
		Secret:        offer.Secret,
		RecoveryCodes: offer.RecoveryCodes,
		Code:          "123456",
	})

Login-time verification follows the challenge/verify pair:

	challenge, err := client.IssueChallenge(ctx, serviceToken)
	result, err := client.Verify(ctx, serviceToken, twofasdk.VerifyRequest{
		Nonce:       challenge.Nonce,
		Code:        "123456",
		TrustDevice: true,
		DeviceName:  "Alice's laptop",
	})

Errors returned by the service decode into *Error values; compare their Code
against the ErrorCode constants, or errors.Is against the predefined values
such as ErrInvalidCode.
*/
package twofasdk
