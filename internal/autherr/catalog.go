package autherr

func def(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// ─── Validación (antes de cualquier llamada de red) ───

var (
	ErrInvalidEmailFormat = def(KindValidation, "invalid_email_format", "email address is not valid")
	ErrEmptyDisplayName   = def(KindValidation, "empty_display_name", "display name must not be empty")
)

// ─── Conflicto de provider ───

var (
	ErrAccountExistsWithOtherProvider = def(KindProviderConflict, "account_exists_with_other_provider",
		"an account already exists for this email with another sign-in method")
)

// ─── Credencial de plataforma ───

var (
	ErrMissingIdentityToken = def(KindCredential, "missing_identity_token", "credential has no identity token")
	ErrMissingNonce         = def(KindCredential, "missing_nonce", "credential callback received without a login request")
	ErrNonceMismatch        = def(KindCredential, "nonce_mismatch", "identity token was not issued for this request")
	ErrNoSuchCredential     = def(KindCredential, "no_such_credential", "identity provider rejected the credential")
)

// ─── Estado de links ───

var (
	ErrLinkExpired         = def(KindLinkState, "link_expired", "the link has expired or is no longer valid")
	ErrEmailMismatch       = def(KindLinkState, "email_mismatch", "the link was issued for a different email address")
	ErrLinkAlreadyConsumed = def(KindLinkState, "link_already_consumed", "the link has already been used")
	ErrNoPendingLink       = def(KindLinkState, "no_pending_link", "no sign-in link was requested on this device")
)

// ─── Reautenticación y borrado ───

var (
	ErrReauthFailed    = def(KindReauthFailed, "reauth_failed", "could not verify your identity")
	ErrStaleCompletion = def(KindReauthFailed, "stale_completion", "verification finished after the flow was abandoned")
	ErrDeletionDenied  = def(KindDeletionDenied, "deletion_denied", "the identity provider refused to delete the account")
)

// ─── Transporte ───

var (
	ErrTransport = def(KindTransport, "transport", "identity provider request failed")
)

// ─── Concurrencia y estado ───

var (
	ErrSignInAlreadyInProgress = def(KindBusy, "sign_in_already_in_progress", "a sign-in is already in progress")
	ErrReauthAlreadyInProgress = def(KindBusy, "reauth_already_in_progress", "a verification is already in progress")
	ErrInvalidTransition       = def(KindState, "invalid_transition", "session state changed, try again")
	ErrNotSignedIn             = def(KindState, "not_signed_in", "no user is signed in")
)
