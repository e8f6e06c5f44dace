package models

// Actor is the authenticated caller of a lifecycle or attachment operation.
type Actor struct {
	UserID string `json:"userId"`
}

type User struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	FullName         string `json:"fullName"`
	IdentityVerified bool   `json:"identityVerified"`
}

// Company is an SSM-registered business owned by a user.
type Company struct {
	ID        string `json:"id"`
	OwnerID   string `json:"ownerId"`
	SSMNumber string `json:"ssmNumber"`
	Name      string `json:"name"`
}
