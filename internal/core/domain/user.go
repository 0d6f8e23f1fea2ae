package domain

import "time"

// User is the public view of an account. It never carries the password hash.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Roles    Roles  `json:"roles"`
}

// UserCredentials is the authentication-internal view of the same row.
// It must not leave the auth service.
type UserCredentials struct {
	User
	PasswordHash string `json:"-"`
}

// Identity is what a validated bearer token says about its holder.
type Identity struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Roles     Roles     `json:"roles"`
	ExpiresAt time.Time `json:"-"`
}

// IdentityOf builds the token subject for u.
func IdentityOf(u User) Identity {
	return Identity{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Roles:    u.Roles.Normalize(),
	}
}

// RegisterInput carries the registration form. Tags drive field validation;
// the json names double as the field names reported back to the client.
type RegisterInput struct {
	Username        string `json:"username" validate:"required,alphanumunicode"`
	Email           string `json:"email" validate:"required,email_address"`
	Password        string `json:"password" validate:"required,min=5"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}
