package identity

import (
	"errors"

	"github.com/dropDatabas3/hellojohn-session/internal/autherr"
)

// Translate lleva un error del provider a la taxonomía de autherr. Lo que ya
// es *autherr.Error pasa sin cambios; lo desconocido es transporte.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	var ae *autherr.Error
	if errors.As(err, &ae) {
		return err
	}
	switch {
	case errors.Is(err, ErrNoSuchCredential):
		return autherr.ErrNoSuchCredential.WithCause(err)
	case errors.Is(err, ErrLinkExpired):
		return autherr.ErrLinkExpired.WithCause(err)
	case errors.Is(err, ErrLinkConsumed):
		return autherr.ErrLinkAlreadyConsumed.WithCause(err)
	case errors.Is(err, ErrLinkMismatch):
		return autherr.ErrEmailMismatch.WithCause(err)
	case errors.Is(err, ErrTokenNonce):
		return autherr.ErrNonceMismatch.WithCause(err)
	case errors.Is(err, ErrNoCurrentUser):
		return autherr.ErrNotSignedIn.WithCause(err)
	}
	return autherr.ErrTransport.WithCause(err)
}
