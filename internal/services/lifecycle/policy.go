package lifecycle

import (
	"permohonan-service/internal/common/errors"
	"permohonan-service/internal/models"
)

// Predicates return nil to allow and a typed error naming the reason to deny.

func IsOwner(actor models.Actor, app models.Application) error {
	if actor.UserID == "" || actor.UserID != app.UserID {
		return errors.NewNotOwnerError(app.ID)
	}
	return nil
}

func IsDraft(app models.Application) error {
	if app.Status != models.StatusDraft {
		return errors.NewNotDraftError(app.ID, string(app.Status))
	}
	return nil
}

// CanEdit gates updateDraft and cancel.
func CanEdit(actor models.Actor, app models.Application) error {
	if err := IsOwner(actor, app); err != nil {
		return err
	}
	return IsDraft(app)
}

// OwnsCompany checks a company owner looked up from the directory.
func OwnsCompany(actor models.Actor, companyID, ownerID string) error {
	if actor.UserID == "" || ownerID != actor.UserID {
		return errors.NewCompanyNotOwnedError(companyID)
	}
	return nil
}

func IdentityVerified(actor models.Actor, verified bool) error {
	if !verified {
		return errors.NewIdentityNotVerifiedError(actor.UserID)
	}
	return nil
}
